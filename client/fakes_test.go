package client_test

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-identity-bridge/client"
)

// fakeIdP is a scriptable IdP double. Each behavior defaults to "nothing
// happens"; tests override whichever calls they exercise.
type fakeIdP struct {
	lock sync.Mutex

	redirectResult *client.AuthResult
	redirectErr    error
	redirectCalls  int

	popupResult *client.AuthResult
	popupErr    error

	redirectLoginCalls int

	silentResult *client.AuthResult
	silentErr    error
	silentCalls  int

	ssoResult *client.AuthResult
	ssoErr    error
	ssoCalls  int

	accounts    []client.Account
	active      *client.Account
	logoutCalls int
}

var _ client.IdP = (*fakeIdP)(nil)

func (f *fakeIdP) HandleRedirect(_ context.Context) (*client.AuthResult, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.redirectCalls++
	return f.redirectResult, f.redirectErr
}

func (f *fakeIdP) LoginPopup(_ context.Context) (*client.AuthResult, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.popupResult, f.popupErr
}

func (f *fakeIdP) LoginRedirect(_ context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.redirectLoginCalls++
	return nil
}

func (f *fakeIdP) AcquireTokenSilent(_ context.Context, _ client.Account) (*client.AuthResult, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.silentCalls++
	return f.silentResult, f.silentErr
}

func (f *fakeIdP) SsoSilent(_ context.Context) (*client.AuthResult, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.ssoCalls++
	return f.ssoResult, f.ssoErr
}

func (f *fakeIdP) Accounts() []client.Account {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.accounts
}

func (f *fakeIdP) ActiveAccount() *client.Account {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.active
}

func (f *fakeIdP) SetActiveAccount(account *client.Account) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.active = account
}

func (f *fakeIdP) Logout(_ context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.logoutCalls++
	f.active = nil
	return nil
}

// fakeEnvironment is a scriptable Environment double.
type fakeEnvironment struct {
	lock sync.Mutex

	hasOpener    bool
	hasArtifacts bool

	stripped    int
	closedCalls int

	visible chan struct{}
}

var _ client.Environment = (*fakeEnvironment)(nil)

func newFakeEnvironment() *fakeEnvironment {
	return &fakeEnvironment{visible: make(chan struct{}, 1)}
}

func (f *fakeEnvironment) HasOpener() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.hasOpener
}

func (f *fakeEnvironment) HasAuthArtifacts() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.hasArtifacts
}

func (f *fakeEnvironment) StripAuthArtifacts() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.hasArtifacts = false
	f.stripped++
}

func (f *fakeEnvironment) CloseWindow() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.closedCalls++
}

func (f *fakeEnvironment) Visible() <-chan struct{} {
	return f.visible
}

func (f *fakeEnvironment) strippedCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.stripped
}

func (f *fakeEnvironment) closedCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.closedCalls
}

func testAccount() *client.Account {
	return &client.Account{
		HomeID:   "home-1",
		Username: "jane.doe@university.edu",
		TenantID: "contoso",
	}
}

func testAuthResult() *client.AuthResult {
	return &client.AuthResult{
		IDToken: "provider-id-token",
		Account: testAccount(),
	}
}
