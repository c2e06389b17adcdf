package voiceService

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Page describes a screen for its mount announcement.
type Page struct {
	Title   string   `json:"title"`
	Actions []string `json:"actions"`
}

const LandingPageTitle = "Homepage"

var pageCatalogue = map[string]Page{
	"home": {Title: LandingPageTitle},
	"login": {Title: "Login Page", Actions: []string{
		"Enter email and password to sign in",
		"Use voice input for the fields",
		"Sign in with Google",
		"Return to home page",
		"Go to Sign up",
	}},
	"signup": {Title: "Sign Up Page", Actions: []string{
		"Enter name, email, and password to create account",
		"Use voice input the fields",
		"Sign up with Google",
		"Return to login page",
		"Return to home page",
	}},
	"forgot-password": {Title: "Forgot Password Page", Actions: []string{
		"Enter email address to reset password",
		"Send password reset link",
		"Return to login page",
		"Return to home page",
	}},
	"dashboard": {Title: "Dashboard Page", Actions: []string{
		"See your accounts",
		"View your transactions",
		"create a new account",
		"Save a new transaction",
		"Hear your account summary",
	}},
	"view-accounts": {Title: "View Accounts Page", Actions: []string{
		`Say "create account" to create a new account`,
		`Say "read accounts" to hear your account list`,
		`Say "delete account" to delete an account`,
		`Say "back to dashboard" to return to dashboard`,
		`Say "refresh" to update the account list`,
	}},
	"view-transactions": {Title: "View Transactions Page", Actions: []string{
		`Say "create transaction" to create a new transaction`,
		`Say "read transactions" to hear your transaction list`,
		`Say "read details" to hear details of the selected transaction`,
		`Say "back to dashboard" to return to dashboard`,
		`Say "refresh" to update the transaction list`,
	}},
}

// LookupPage returns the built-in description of a page id.
func LookupPage(id string) (Page, bool) {
	p, ok := pageCatalogue[id]
	return p, ok
}

// ComposeAnnouncement builds the mount announcement of a page.
func ComposeAnnouncement(product string, p Page) string {
	var b strings.Builder
	if strings.EqualFold(p.Title, LandingPageTitle) {
		fmt.Fprintf(&b, "Welcome to %s. You can get started by creating a new account or signing in to your existing account.", product)
		if len(p.Actions) > 0 {
			b.WriteString(" Available commands: ")
			b.WriteString(strings.Join(p.Actions, ", "))
		}
		return b.String()
	}

	b.WriteString(p.Title)
	b.WriteString(".")
	if len(p.Actions) > 0 {
		b.WriteString(" You can: ")
		b.WriteString(strings.Join(p.Actions, ", "))
	}
	return b.String()
}

// PageAnnouncer speaks a page description once per mount.
type PageAnnouncer struct {
	log         *logrus.Logger
	ctx         context.Context
	audio       AudioChannel
	product     string
	initTimeout time.Duration

	mu        sync.Mutex
	mounted   string
	announced bool
}

func NewPageAnnouncer(ctx context.Context, log *logrus.Logger, audio AudioChannel, product string) *PageAnnouncer {
	return &PageAnnouncer{
		log:         log,
		ctx:         ctx,
		audio:       audio,
		product:     product,
		initTimeout: 3 * time.Second,
	}
}

// Mount announces page id unless it was already announced for the current
// mount. When p has no title the built-in catalogue is used.
func (a *PageAnnouncer) Mount(id string, p Page) bool {
	if p.Title == "" {
		builtin, ok := LookupPage(id)
		if !ok {
			a.log.WithFields(logrus.Fields{
				"request_id": requestIDOf(a.ctx),
				"page":       id,
			}).Warn("Unknown page mounted")
			return false
		}
		if len(p.Actions) == 0 {
			p.Actions = builtin.Actions
		}
		p.Title = builtin.Title
	}

	a.mu.Lock()
	if a.announced && a.mounted == id {
		a.mu.Unlock()
		return false
	}
	a.mounted = id
	a.announced = true
	a.mu.Unlock()

	a.audio.StopSpeaking()
	a.audio.StopListening()

	ctx, cancel := context.WithTimeout(a.ctx, a.initTimeout)
	defer cancel()
	if !a.audio.Initialize(ctx) {
		a.log.WithFields(logrus.Fields{
			"request_id": requestIDOf(a.ctx),
			"page":       id,
		}).Warn("Speech synthesis unavailable, page not announced")
		return false
	}

	a.audio.Announce(ComposeAnnouncement(a.product, p), false)
	return true
}

// Unmount re-arms the guard so the next visit of id is announced again.
func (a *PageAnnouncer) Unmount(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id == "" || a.mounted == id {
		a.mounted = ""
		a.announced = false
	}
}
