package login

import (
	"context"

	"github.com/Rorqualx/browser-login-go/internal/browser"
)

// BrowserPages adapts a browser.Manager to the PageFactory interface.
type BrowserPages struct {
	Manager *browser.Manager
}

// NewPage opens a fresh isolated browser context.
func (b BrowserPages) NewPage(ctx context.Context) (Page, error) {
	c, err := b.Manager.NewContext(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}
