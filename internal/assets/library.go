package assets

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tulikaff659/zolo/internal/storage"
)

// Blobs is the subset of storage.BlobStore the library needs.
type Blobs interface {
	Exists(ctx context.Context, key string) (bool, error)
	Size(ctx context.Context, key string) (int64, error)
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	Write(ctx context.Context, key string, r io.Reader) (int64, error)
	Delete(ctx context.Context, key string) error
}

type SlotStatus struct {
	Slot      Slot
	Available bool
	Size      int64
}

// Library answers availability questions by looking at the blob store only.
type Library struct {
	blobs Blobs
}

func NewLibrary(b Blobs) *Library { return &Library{blobs: b} }

func (l *Library) Status(ctx context.Context) ([]SlotStatus, error) {
	out := make([]SlotStatus, 0, len(slots))
	for _, s := range slots {
		st := SlotStatus{Slot: s}
		size, err := l.blobs.Size(ctx, s.ID)
		switch {
		case err == nil:
			st.Available, st.Size = true, size
		case errors.Is(err, storage.ErrNotFound):
		default:
			return nil, fmt.Errorf("slot %s: %w", s.ID, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// Available returns the slots that currently have a file, in catalog order.
func (l *Library) Available(ctx context.Context) ([]Slot, error) {
	all, err := l.Status(ctx)
	if err != nil {
		return nil, err
	}
	var out []Slot
	for _, st := range all {
		if st.Available {
			out = append(out, st.Slot)
		}
	}
	return out, nil
}

func (l *Library) Has(ctx context.Context, s Slot) (bool, error) {
	return l.blobs.Exists(ctx, s.ID)
}

func (l *Library) Put(ctx context.Context, s Slot, r io.Reader) (int64, error) {
	return l.blobs.Write(ctx, s.ID, r)
}

func (l *Library) Open(ctx context.Context, s Slot) (io.ReadCloser, error) {
	return l.blobs.Read(ctx, s.ID)
}

// Remove deletes the slot file; storage.ErrNotFound means there was nothing to delete.
func (l *Library) Remove(ctx context.Context, s Slot) error {
	return l.blobs.Delete(ctx, s.ID)
}
