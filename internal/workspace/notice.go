package workspace

import (
	"errors"

	"github.com/starford/notesapp/internal/apperr"
	"github.com/starford/notesapp/internal/session"
)

// Op names a user action for notice selection.
type Op string

const (
	OpSession Op = "session"
	OpSignUp  Op = "sign_up"
	OpSignIn  Op = "sign_in"
	OpSignOut Op = "sign_out"
	OpLoad    Op = "load"
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
	OpProfile Op = "profile"
)

// VariantDestructive marks a failure notice.
const VariantDestructive = "destructive"

// Notice is the short message shown to the user after an action.
type Notice struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Variant     string `json:"variant,omitempty"`
}

var successNotices = map[Op]Notice{
	OpSignUp:  {Title: "Account Created Successfully!", Description: "Welcome to your new account"},
	OpSignIn:  {Title: "Welcome back!", Description: "You have been signed in successfully."},
	OpSignOut: {Title: "Signed Out", Description: "You have been signed out."},
	OpCreate:  {Title: "Note Created", Description: "Your note has been created successfully"},
	OpUpdate:  {Title: "Note Updated", Description: "Your note has been updated successfully"},
	OpDelete:  {Title: "Note Deleted", Description: "Your note has been deleted successfully"},
}

var failureTitles = map[Op]string{
	OpSession: "Authentication Error",
	OpSignUp:  "Sign Up Failed",
	OpSignIn:  "Login Failed",
	OpLoad:    "Notes Error",
	OpCreate:  "Creation Failed",
	OpUpdate:  "Update Failed",
	OpDelete:  "Delete Failed",
	OpProfile: "Profile Error",
}

// NoticeFor returns the notice for the outcome of op. A nil err yields the
// success notice, or the zero Notice when op has none.
func NoticeFor(op Op, err error) Notice {
	if err == nil {
		return successNotices[op]
	}

	n := Notice{Title: failureTitles[op], Variant: VariantDestructive}
	if n.Title == "" {
		n.Title = "Something Went Wrong"
	}

	// Session bootstrap failures are named after the step that failed.
	var re *apperr.RemoteError
	if errors.As(err, &re) {
		switch re.Op {
		case session.OpCurrentUser:
			return Notice{Title: "Authentication Error", Description: "Could not fetch user data.", Variant: VariantDestructive}
		case session.OpLoadProfile:
			return Notice{Title: "Profile Error", Description: "Could not load user profile.", Variant: VariantDestructive}
		case "load notes":
			return Notice{Title: "Notes Error", Description: "Could not load your notes.", Variant: VariantDestructive}
		}
	}

	switch {
	case errors.Is(err, apperr.ErrValidation):
		n.Title = "Validation Error"
		n.Description = err.Error()
		if op == OpCreate || op == OpUpdate {
			n.Description = "Please fill in both title and content"
		}
	case errors.Is(err, apperr.ErrTimeout):
		n.Description = "The server took too long to respond. Please try again."
	case errors.Is(err, apperr.ErrSuperseded):
		n.Description = "A newer change to this note was saved first."
	case errors.Is(err, apperr.ErrUnauthenticated) && re == nil:
		n.Title = "Authentication Error"
		n.Description = "Please sign in to continue."
	case re != nil:
		n.Description = re.Err.Error()
	default:
		n.Description = err.Error()
	}
	return n
}
