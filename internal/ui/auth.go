package ui

import (
	"fmt"

	"github.com/danhigham/tgupload/internal/auth"
	"github.com/danhigham/tgupload/internal/state"
)

func credentialsForm(settings *state.Store) FormModel {
	return NewFormModel(formCredentials, "Telegram account",
		"API id and hash come from my.telegram.org. Enter on the last field logs in.",
		newField("API id", "1234567", settings.String(state.KeyAPIID, ""), false),
		newField("API hash", "0123456789abcdef", settings.String(state.KeyAPIHash, ""), true),
		newField("Phone", "+15550100", settings.String(state.KeyPhone, ""), false),
	)
}

func codeForm(ch auth.Challenge) FormModel {
	return NewFormModel(formCode, "Login code",
		fmt.Sprintf("A code was sent to %s at %s. Type it before it expires.",
			ch.Phone, ch.IssuedAt.Format("15:04:05")),
		newField("Code", "12345", "", false),
	)
}

func secondFactorForm(hint string) FormModel {
	return NewFormModel(formSecondFactor, "Two-step verification", hint,
		newField("Password", "", "", true),
	)
}

// authFailureText describes a failed login for the credentials screen.
func authFailureText(err *auth.Error) string {
	if err == nil {
		return "Login failed"
	}
	switch err.Reason {
	case auth.ReasonInvalidCode, auth.ReasonCodeExpired:
		return err.Error() + ". Press Enter to send a new code."
	case auth.ReasonRateLimited:
		return fmt.Sprintf("Too many attempts. Try again in %s.", err.RetryAfter)
	default:
		return err.Error()
	}
}
