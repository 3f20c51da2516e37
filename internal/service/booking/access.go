package booking

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/Domenick1991/roombooking/internal/domain"
)

type ViewKind int

const (
	ViewNotFound ViewKind = iota
	ViewPublic
	ViewOwner
)

func (k ViewKind) String() string {
	switch k {
	case ViewPublic:
		return "public"
	case ViewOwner:
		return "owner"
	default:
		return "not_found"
	}
}

type Resolution struct {
	Kind    ViewKind
	Booking *domain.Booking
}

type ViewDecision int

const (
	ViewAllowed ViewDecision = iota
	ViewCodeRequired
	ViewCodeIncorrect
)

// KeyLookup is the part of the store the resolver needs. A miss returns domain.ErrNotFound.
type KeyLookup interface {
	FindByPublicKey(ctx context.Context, key string) (*domain.Booking, error)
	FindByPrivateKey(ctx context.Context, key string) (*domain.Booking, error)
}

type AccessResolver struct {
	lookup KeyLookup
}

func NewAccessResolver(lookup KeyLookup) *AccessResolver {
	return &AccessResolver{lookup: lookup}
}

// Resolve tries the key as a public key first, then as a private key.
func (r *AccessResolver) Resolve(ctx context.Context, key string) (Resolution, error) {
	if key == "" {
		return Resolution{Kind: ViewNotFound}, nil
	}

	b, err := r.lookup.FindByPublicKey(ctx, key)
	switch {
	case err == nil:
		return Resolution{Kind: ViewPublic, Booking: b}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return Resolution{}, err
	}

	b, err = r.lookup.FindByPrivateKey(ctx, key)
	switch {
	case err == nil:
		return Resolution{Kind: ViewOwner, Booking: b}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return Resolution{}, err
	}

	return Resolution{Kind: ViewNotFound}, nil
}

// AuthorizeOwner compares the presented key with the stored private key, exactly and case-sensitively.
func (r *AccessResolver) AuthorizeOwner(b *domain.Booking, key string) bool {
	if b == nil || key == "" || b.PrivateKey == "" {
		return false
	}
	return secretEqual(b.PrivateKey, key)
}

// AuthorizeViewer gates viewing a booking without its private key. An empty code counts as not supplied.
func (r *AccessResolver) AuthorizeViewer(b *domain.Booking, code string) ViewDecision {
	if !b.IsPrivate() {
		return ViewAllowed
	}
	if code == "" {
		return ViewCodeRequired
	}
	if !secretEqual(b.AccessCode, code) {
		return ViewCodeIncorrect
	}
	return ViewAllowed
}

func secretEqual(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
