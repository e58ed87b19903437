package telegram

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-bot/pkg/util/errorutil"
)

func TestUserMessage(t *testing.T) {
	if got := userMessage(pgx.ErrNoRows); got != "Ticket not found." {
		t.Errorf("bare row miss = %q", got)
	}
	if got := userMessage(fmt.Errorf("load ticket: %w", pgx.ErrNoRows)); got != "Ticket not found." {
		t.Errorf("wrapped row miss = %q", got)
	}
	if got := userMessage(errorutil.NewRateLimited("message limit reached")); got != "message limit reached" {
		t.Errorf("domain error = %q", got)
	}
	if got := userMessage(errors.New("boom")); got != "Something went wrong, please try again." {
		t.Errorf("unknown error = %q", got)
	}
}
