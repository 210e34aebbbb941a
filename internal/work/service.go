package work

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/catalog"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/store"
)

// Service runs the job board: characters take jobs and are paid from the
// employer's wallet when they finish.
type Service struct {
	store   store.Store
	ledger  *ledger.Ledger
	catalog *catalog.Catalog
	logger  *slog.Logger
	Clock   func() time.Time
}

// NewService constructs a job board service.
func NewService(s store.Store, led *ledger.Ledger, cat *catalog.Catalog, logger *slog.Logger) *Service {
	return &Service{store: s, ledger: led, catalog: cat, logger: logger, Clock: time.Now}
}

func (s *Service) now() time.Time {
	return s.Clock().UTC()
}

// Listing is a job on offer.
type Listing struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Employer string          `json:"employer"`
	Pay      decimal.Decimal `json:"pay"`
}

// Jobs lists the catalog's jobs.
func (s *Service) Jobs() []Listing {
	out := make([]Listing, 0, len(s.catalog.Jobs))
	for _, j := range s.catalog.Jobs {
		out = append(out, Listing{ID: j.ID, Name: j.Name, Employer: j.Employer, Pay: j.PayAmount()})
	}
	return out
}

// Take records the character as working the job.
func (s *Service) Take(ctx context.Context, characterID, jobID string) (store.JobAssignment, error) {
	job, ok := s.catalog.Job(jobID)
	if !ok {
		return store.JobAssignment{}, apperr.NotFound("job %s not found", jobID)
	}
	j := store.JobAssignment{
		ID:             uuid.NewString(),
		JobID:          job.ID,
		CharacterID:    characterID,
		EmployerWallet: job.Employer,
		Pay:            job.PayAmount(),
		Status:         store.JobAssigned,
		CreatedAt:      s.now(),
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertJobAssignment(ctx, j)
	})
	if err != nil {
		return store.JobAssignment{}, fmt.Errorf("record assignment: %w", err)
	}
	s.logger.InfoContext(ctx, "job taken", "character_id", characterID, "job_id", jobID, "assignment_id", j.ID)
	return j, nil
}

// Payout describes a completed job.
type Payout struct {
	AssignmentID  string          `json:"assignmentId"`
	JobID         string          `json:"jobId"`
	Pay           decimal.Decimal `json:"pay"`
	TransactionID string          `json:"transactionId"`
	CompletedAt   time.Time       `json:"completedAt"`
}

// Complete pays the character for an assignment. The employer pays only from
// what its wallet holds; an assignment is paid once.
func (s *Service) Complete(ctx context.Context, characterID, assignmentID string) (Payout, error) {
	var payout Payout
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		j, err := tx.GetJobAssignment(ctx, assignmentID, true)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("assignment %s not found", assignmentID)
		}
		if err != nil {
			return err
		}
		if j.CharacterID != characterID {
			return apperr.Unauthorized("assignment %s belongs to another character", assignmentID)
		}
		if j.Status != store.JobAssigned {
			return apperr.InvalidState("assignment %s is already %s", assignmentID, j.Status)
		}
		entry, err := s.ledger.Post(ctx, tx, ledger.Posting{
			Type:        ledger.TypeJobPay,
			From:        j.EmployerWallet,
			To:          ledger.WalletFor(characterID),
			Amount:      j.Pay,
			Description: fmt.Sprintf("pay for job %s", j.JobID),
			Mirror:      true,
		})
		if err != nil {
			return err
		}
		now := s.now()
		j.Status = store.JobPaid
		j.CompletedAt = &now
		if err := tx.UpdateJobAssignment(ctx, j); err != nil {
			return err
		}
		payout = Payout{AssignmentID: j.ID, JobID: j.JobID, Pay: j.Pay, TransactionID: entry.ID, CompletedAt: now}
		return nil
	})
	if err != nil {
		return Payout{}, err
	}
	s.logger.InfoContext(ctx, "job paid", "character_id", characterID, "assignment_id", assignmentID,
		"amount", payout.Pay.String())
	return payout, nil
}
