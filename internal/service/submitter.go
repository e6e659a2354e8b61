package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/policydesk/api/internal/client"
	"github.com/policydesk/api/internal/model"
	"golang.org/x/sync/singleflight"
)

// Submission is the outcome of one generation request
type Submission struct {
	JobID   string
	Adopted bool
	Status  model.JobStatus
}

// Submitter sends generation requests to the relay. A target never has more
// than one active job: duplicates resolve to the job already in flight.
type Submitter struct {
	relay    client.RelayAPI
	validate *validator.Validate
	group    singleflight.Group

	mu     sync.Mutex
	active map[string]string // targetID -> jobID
	byJob  map[string]string // jobID -> targetID
}

// NewValidator returns a validator reporting fields by their JSON names
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func NewSubmitter(relay client.RelayAPI, validate *validator.Validate) *Submitter {
	if validate == nil {
		validate = NewValidator()
	}
	return &Submitter{
		relay:    relay,
		validate: validate,
		active:   make(map[string]string),
		byJob:    make(map[string]string),
	}
}

// Submit validates req and asks the relay to render it. A relay conflict is
// not an error: the existing job is adopted and returned with Adopted set.
func (s *Submitter) Submit(ctx context.Context, req model.JobRequest) (*Submission, error) {
	req = req.Normalized()
	if err := s.validate.Struct(req); err != nil {
		return nil, ValidationErrorFrom(err)
	}

	if jobID, ok := s.activeJob(req.TargetID); ok {
		if sub, inFlight := s.adoptLocal(ctx, req.TargetID, jobID); inFlight {
			return sub, nil
		}
	}

	v, err, _ := s.group.Do(req.TargetID, func() (interface{}, error) {
		return s.submit(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	sub := v.(*Submission)
	return &Submission{JobID: sub.JobID, Adopted: sub.Adopted, Status: sub.Status.Clone()}, nil
}

func (s *Submitter) submit(ctx context.Context, req model.JobRequest) (*Submission, error) {
	resp, err := s.relay.Generate(ctx, &client.GenerateRequest{
		TargetID:       req.TargetID,
		ApplyDate:      req.ApplyDateText,
		ApplyContent:   req.ApplyContentText,
		AccessGroupIDs: req.AccessGroupIDs,
	})
	if err != nil {
		var conflict *client.ConflictError
		if errors.As(err, &conflict) {
			log.Printf("[Submit] relay reports job %s in flight for target %s, adopting", conflict.ExistingJobID, req.TargetID)
			s.remember(req.TargetID, conflict.ExistingJobID)
			return s.adopt(ctx, req.TargetID, conflict.ExistingJobID), nil
		}
		return nil, fmt.Errorf("failed to submit target %s: %w", req.TargetID, err)
	}

	s.remember(req.TargetID, resp.JobID)
	log.Printf("[Submit] target %s queued as job %s", req.TargetID, resp.JobID)

	return &Submission{
		JobID:  resp.JobID,
		Status: resp.ToJobStatus(),
	}, nil
}

// adopt reads the status of an existing job once so the caller starts with
// its queue metadata. The read is best effort.
func (s *Submitter) adopt(ctx context.Context, targetID, jobID string) *Submission {
	sub := &Submission{
		JobID:   jobID,
		Adopted: true,
		Status: model.JobStatus{
			JobID:   jobID,
			Status:  model.JobStateQueued,
			Message: "adopted existing job",
		},
	}
	resp, err := s.relay.GetStatus(ctx, jobID)
	if err != nil {
		log.Printf("[Submit] status read for adopted job %s (target %s) failed: %v", jobID, targetID, err)
		return sub
	}
	sub.Status = resp.ToJobStatus(jobID)
	return sub
}

// adoptLocal adopts the job remembered for targetID unless the relay shows it
// has finished or no longer knows it. In that case the job is settled and the
// caller submits a new one.
func (s *Submitter) adoptLocal(ctx context.Context, targetID, jobID string) (*Submission, bool) {
	resp, err := s.relay.GetStatus(ctx, jobID)
	switch {
	case err == nil:
		st := resp.ToJobStatus(jobID)
		if !st.Status.IsTerminal() {
			log.Printf("[Submit] target %s already has job %s in flight, adopting", targetID, jobID)
			return &Submission{JobID: jobID, Adopted: true, Status: st}, true
		}
		log.Printf("[Submit] job %s for target %s already %s, submitting a new one", jobID, targetID, st.Status)
	case client.IsTransient(err) || ctx.Err() != nil:
		log.Printf("[Submit] status read for job %s (target %s) failed, adopting: %v", jobID, targetID, err)
		return &Submission{
			JobID:   jobID,
			Adopted: true,
			Status:  model.JobStatus{JobID: jobID, Status: model.JobStateQueued, Message: "adopted existing job"},
		}, true
	default:
		log.Printf("[Submit] job %s for target %s is unknown to the relay, submitting a new one: %v", jobID, targetID, err)
	}
	s.Settle(jobID)
	return nil, false
}

// Settle forgets jobID once it reached a terminal state, so the next submit
// for its target starts a new job.
func (s *Submitter) Settle(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	targetID, ok := s.byJob[jobID]
	if !ok {
		return
	}
	delete(s.byJob, jobID)
	if s.active[targetID] == jobID {
		delete(s.active, targetID)
	}
}

// ActiveJob returns the job in flight for a target, if any
func (s *Submitter) ActiveJob(targetID string) (string, bool) {
	return s.activeJob(strings.TrimSpace(targetID))
}

func (s *Submitter) activeJob(targetID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobID, ok := s.active[targetID]
	return jobID, ok
}

func (s *Submitter) remember(targetID, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.active[targetID]; ok && prev != jobID {
		delete(s.byJob, prev)
	}
	s.active[targetID] = jobID
	s.byJob[jobID] = targetID
}

// ValidationErrorFrom converts validator errors into a field -> rule map
func ValidationErrorFrom(err error) *model.ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &model.ValidationError{Fields: map[string]string{"request": err.Error()}}
	}
	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		fields[e.Field()] = e.Tag()
	}
	return &model.ValidationError{Fields: fields}
}
