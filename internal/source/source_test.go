package source

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"netwatch/pkg/models"
)

func TestWrapMatchesErrSource(t *testing.T) {
	base := errors.New("permission denied")
	err := Wrap("list", base)
	if !errors.Is(err, ErrSource) {
		t.Fatalf("expected wrapped error to match ErrSource")
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to keep its cause")
	}
	if err.Error() != "source list: permission denied" {
		t.Fatalf("unexpected message: %s", err)
	}

	outer := fmt.Errorf("poll: %w", err)
	if again := Wrap("other", outer); again != outer {
		t.Fatalf("expected already wrapped error to pass through")
	}
	if Wrap("x", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestFuncAdapter(t *testing.T) {
	var s Source = Func(func(ctx context.Context) ([]models.RawConnection, error) {
		return []models.RawConnection{{Protocol: "TCP", PID: 1}}, nil
	})
	got, err := s.Connections(context.Background())
	if err != nil || len(got) != 1 {
		t.Fatalf("unexpected result: %v %v", got, err)
	}
}
