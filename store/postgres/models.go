package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
)

type settingModel struct {
	bun.BaseModel `bun:"table:conductor_settings"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

type archivedJobModel struct {
	bun.BaseModel `bun:"table:conductor_job_archive"`

	ID                string          `bun:"id,pk"`
	Type              string          `bun:"type,notnull"`
	Status            string          `bun:"status,notnull"`
	ScheduledFor      time.Time       `bun:"scheduled_for,notnull"`
	CreatedAt         time.Time       `bun:"created_at,notnull"`
	StartedAt         *time.Time      `bun:"started_at"`
	FinishedAt        *time.Time      `bun:"finished_at"`
	Attempts          int             `bun:"attempts,notnull,default:0"`
	MaxRetries        int             `bun:"max_retries,notnull,default:0"`
	Description       string          `bun:"description,notnull,default:''"`
	Metadata          json.RawMessage `bun:"metadata,type:jsonb"`
	Result            json.RawMessage `bun:"result,type:jsonb"`
	LastError         string          `bun:"last_error,notnull,default:''"`
	CancelReason      string          `bun:"cancel_reason,notnull,default:''"`
	CancelRequestedAt *time.Time      `bun:"cancel_requested_at"`
}

func toArchivedModel(j *job.Job) (*archivedJobModel, error) {
	m := &archivedJobModel{
		ID:                j.ID.String(),
		Type:              string(j.Type),
		Status:            string(j.Status),
		ScheduledFor:      j.ScheduledFor,
		CreatedAt:         j.CreatedAt,
		StartedAt:         j.StartedAt,
		FinishedAt:        j.FinishedAt,
		Attempts:          j.Attempts,
		MaxRetries:        j.MaxRetries,
		Description:       j.Description,
		LastError:         j.LastError,
		CancelReason:      j.CancelReason,
		CancelRequestedAt: j.CancelRequestedAt,
	}
	if j.Metadata != nil {
		b, err := json.Marshal(j.Metadata)
		if err != nil {
			return nil, fmt.Errorf("conductor/postgres: encode metadata: %w", err)
		}
		m.Metadata = b
	}
	if j.Result != nil {
		b, err := json.Marshal(j.Result)
		if err != nil {
			return nil, fmt.Errorf("conductor/postgres: encode result: %w", err)
		}
		m.Result = b
	}
	return m, nil
}

func fromArchivedModel(m *archivedJobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		ID:                parsedID,
		Type:              job.Type(m.Type),
		Status:            job.Status(m.Status),
		ScheduledFor:      m.ScheduledFor,
		CreatedAt:         m.CreatedAt,
		StartedAt:         m.StartedAt,
		FinishedAt:        m.FinishedAt,
		Attempts:          m.Attempts,
		MaxRetries:        m.MaxRetries,
		Description:       m.Description,
		LastError:         m.LastError,
		CancelReason:      m.CancelReason,
		CancelRequestedAt: m.CancelRequestedAt,
	}
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &j.Metadata); err != nil {
			return nil, fmt.Errorf("conductor/postgres: decode metadata: %w", err)
		}
	}
	if len(m.Result) > 0 {
		if err := json.Unmarshal(m.Result, &j.Result); err != nil {
			return nil, fmt.Errorf("conductor/postgres: decode result: %w", err)
		}
	}
	return j, nil
}
