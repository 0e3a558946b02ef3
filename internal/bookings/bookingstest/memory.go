// Package bookingstest provides an in-memory booking store for tests.
package bookingstest

import (
	"context"
	"sync"
	"time"

	"github.com/fabrevive/pickup-payments/internal/bookings"
	pkgerrors "github.com/fabrevive/pickup-payments/pkg/errors"
)

// Store applies patches the way a merge write does: absent documents are
// created, untouched fields are preserved and a Paid booking only takes Paid.
type Store struct {
	mu   sync.Mutex
	docs map[string]bookings.Booking
	now  func() time.Time

	// GetErr is returned from every Get when set.
	GetErr error
	// MergeErrs are returned from successive MergeUpdate calls, one per call.
	MergeErrs []error
	// BeforeMerge runs at the start of every MergeUpdate, outside the lock.
	BeforeMerge func(docID string)

	Gets   int
	Merges []Merge
}

// Merge records one MergeUpdate call.
type Merge struct {
	DocID string
	Patch bookings.Patch
}

func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{docs: map[string]bookings.Booking{}, now: now}
}

// Put seeds a document.
func (s *Store) Put(b bookings.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[b.DocID] = b
}

// Snapshot returns a copy of the stored document.
func (s *Store) Snapshot(docID string) (bookings.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.docs[docID]
	return b, ok
}

func (s *Store) Get(_ context.Context, docID string) (*bookings.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Gets++
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	b, ok := s.docs[docID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	return &b, nil
}

func (s *Store) MergeUpdate(_ context.Context, docID string, patch bookings.Patch) error {
	if s.BeforeMerge != nil {
		s.BeforeMerge(docID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Merges = append(s.Merges, Merge{DocID: docID, Patch: patch})
	if len(s.MergeErrs) > 0 {
		err := s.MergeErrs[0]
		s.MergeErrs = s.MergeErrs[1:]
		if err != nil {
			return err
		}
	}

	b, ok := s.docs[docID]
	if !ok {
		b = bookings.Booking{DocID: docID}
	}
	patch = patch.Against(b.PaymentStatus, b.PaidAt != nil)
	if patch.IsEmpty() {
		return nil
	}
	if patch.PaymentStatus != "" {
		b.PaymentStatus = patch.PaymentStatus
	}
	if patch.CashStatus != "" {
		b.CashStatus = patch.CashStatus
	}
	if patch.Gateway != nil {
		link := *patch.Gateway
		b.Gateway = &link
	}
	switch patch.PaidAt {
	case bookings.PaidAtServerNow:
		ts := s.now()
		b.PaidAt = &ts
	case bookings.PaidAtServerNowIfUnset:
		ts := s.now()
		b.PaidAt = &ts
	}
	s.docs[docID] = b
	return nil
}
