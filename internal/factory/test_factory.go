package factory

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/partygate/internal/dependencies/mocks"
	"github.com/mcoot/partygate/internal/services/lobby"
	"github.com/mcoot/partygate/internal/services/token"
	"github.com/mcoot/partygate/internal/storage/memory"
	"github.com/mcoot/partygate/internal/testutil"
	"github.com/mcoot/partygate/internal/transport/ws"
)

// TestTokenSecret signs credentials issued by a TestApp
const TestTokenSecret = "test-secret"

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an App configured for testing with mocked dependencies.
// Lifecycle countdowns only fire when MockClock is advanced.
func NewTestApp() *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	tokenCfg := token.DefaultConfig()
	tokenCfg.Secret = []byte(TestTokenSecret)

	lobbyCfg := lobby.DefaultConfig()
	lobbyCfg.PasscodeCost = bcrypt.MinCost

	app, err := newWithDependencies(store, mockClock, mockRandom, tokenCfg, lobbyCfg, ws.DefaultConfig(), testutil.NopLogger())
	if err != nil {
		panic(err)
	}

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
