package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/ethauth/adapters/store"
	"github.com/layer-3/ethauth/adapters/tokenizer"
	"github.com/layer-3/ethauth/core"
	"github.com/layer-3/ethauth/internal/eth"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testBanner  = "test banner"
	testKey     = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	upperCased  = "0x2C7536E3605D9C16A7A3D7B1898E529396A65C23"
	lowerCased  = "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"
)

var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// MockChallengeStore is a testify mock of ports.ChallengeStore
type MockChallengeStore struct {
	mock.Mock
}

func (m *MockChallengeStore) StoreChallenge(ctx context.Context, address, challengeHash string) error {
	args := m.Called(ctx, address, challengeHash)
	return args.Error(0)
}

func (m *MockChallengeStore) GetChallenge(ctx context.Context, address string) (string, bool, error) {
	args := m.Called(ctx, address)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockChallengeStore) DeleteChallenge(ctx context.Context, address string) error {
	args := m.Called(ctx, address)
	return args.Error(0)
}

func (m *MockChallengeStore) ConsumeChallenge(ctx context.Context, address, challengeHash string) (bool, error) {
	args := m.Called(ctx, address, challengeHash)
	return args.Bool(0), args.Error(1)
}

// MockEventPublisher records authenticated events
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishAuthenticated(ctx context.Context, address string, at time.Time) error {
	args := m.Called(ctx, address, at)
	return args.Error(0)
}

type fakeRecoverer struct {
	address string
	err     error
}

func (f fakeRecoverer) Recover(core.ChallengeMessage, string) (string, error) {
	return f.address, f.err
}

func newTestService(t *testing.T, s *store.MemoryStore) (*AuthService, *eth.Signer) {
	t.Helper()

	signer, err := eth.NewSignerFromHex(testKey, eth.LegacyHasher{})
	require.NoError(t, err)

	svc, err := NewAuthService(
		Config{Banner: testBanner},
		s,
		eth.NewRecoverer(eth.LegacyHasher{}),
		nil,
		nil,
		zerolog.Nop(),
	)
	require.NoError(t, err)

	return svc, signer
}

func TestNewAuthService_Validation(t *testing.T) {
	_, err := NewAuthService(Config{}, store.NewMemoryStore(0), fakeRecoverer{}, nil, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewAuthService(Config{Banner: testBanner}, nil, fakeRecoverer{}, nil, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress(testAddress))
	assert.True(t, IsValidAddress(lowerCased))
	assert.True(t, IsValidAddress("0xABCDEF0123456789ABCDEF0123456789ABCDEF01"))

	assert.False(t, IsValidAddress("0x1690A20A0afF150C0501919604bf"))
	assert.False(t, IsValidAddress("2c7536E3605D9C16a7a3D7b1898e529396a65c23"))
	assert.False(t, IsValidAddress("0X2c7536E3605D9C16a7a3D7b1898e529396a65c23"))
	assert.False(t, IsValidAddress("0xZZ7536E3605D9C16a7a3D7b1898e529396a65c23"))
	assert.False(t, IsValidAddress(""))
}

func TestCreateChallenge_InvalidAddress(t *testing.T) {
	mockStore := new(MockChallengeStore)
	svc, err := NewAuthService(Config{Banner: testBanner}, mockStore, fakeRecoverer{}, nil, nil, zerolog.Nop())
	require.NoError(t, err)

	msg, err := svc.CreateChallenge(context.Background(), "0x1690A20A0afF150C0501919604bf")
	assert.ErrorIs(t, err, core.ErrInvalidAddress)
	assert.Nil(t, msg)

	mockStore.AssertNotCalled(t, "StoreChallenge", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateChallenge_StoresUnderLowercasedAddress(t *testing.T) {
	mockStore := new(MockChallengeStore)
	mockStore.On("StoreChallenge", mock.Anything, "0xabcdef0123456789abcdef0123456789abcdef01", mock.AnythingOfType("string")).Return(nil)

	svc, err := NewAuthService(Config{Banner: testBanner}, mockStore, fakeRecoverer{}, nil, nil, zerolog.Nop())
	require.NoError(t, err)

	msg, err := svc.CreateChallenge(context.Background(), "0xABCDEF0123456789ABCDEF0123456789ABCDEF01")
	require.NoError(t, err)
	mockStore.AssertExpectations(t)

	storedHash := mockStore.Calls[0].Arguments.String(2)
	assert.Regexp(t, hashPattern, storedHash)
	assert.Equal(t, core.ChallengeMessage{
		{Type: "string", Name: "banner", Value: testBanner},
		{Type: "string", Name: "challenge", Value: storedHash},
	}, msg)
}

func TestCreateChallenge_Fresh(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemoryStore(0))
	ctx := context.Background()

	first, err := svc.CreateChallenge(ctx, testAddress)
	require.NoError(t, err)
	second, err := svc.CreateChallenge(ctx, testAddress)
	require.NoError(t, err)

	assert.NotEqual(t, first.ChallengeHash(), second.ChallengeHash())
	assert.Equal(t, first.Banner(), second.Banner())
}

func TestCreateChallenge_StoreFailure(t *testing.T) {
	for name, storeErr := range map[string]error{
		"sentinel": fmt.Errorf("%w: timeout", core.ErrStoreOperationFailed),
		"raw":      errors.New("connection refused"),
	} {
		t.Run(name, func(t *testing.T) {
			mockStore := new(MockChallengeStore)
			mockStore.On("StoreChallenge", mock.Anything, lowerCased, mock.Anything).Return(storeErr)

			svc, err := NewAuthService(Config{Banner: testBanner}, mockStore, fakeRecoverer{}, nil, nil, zerolog.Nop())
			require.NoError(t, err)

			_, err = svc.CreateChallenge(context.Background(), testAddress)
			assert.ErrorIs(t, err, core.ErrStoreOperationFailed)
			assert.ErrorIs(t, err, storeErr)
		})
	}
}

func TestCheckChallenge_RoundTripSingleUse(t *testing.T) {
	svc, signer := newTestService(t, store.NewMemoryStore(0))
	ctx := context.Background()

	msg, err := svc.CreateChallenge(ctx, upperCased)
	require.NoError(t, err)

	sig, err := signer.Sign(svc.ChallengeMessage(msg.ChallengeHash()))
	require.NoError(t, err)

	address, ok, err := svc.CheckChallenge(ctx, msg.ChallengeHash(), sig)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testAddress, address)

	address, ok, err = svc.CheckChallenge(ctx, msg.ChallengeHash(), sig)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, address)
}

func TestCheckChallenge_WrongSigner(t *testing.T) {
	s := store.NewMemoryStore(0)
	svc, signer := newTestService(t, s)
	ctx := context.Background()

	msg, err := svc.CreateChallenge(ctx, testAddress)
	require.NoError(t, err)

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	other := eth.NewSigner(otherKey, eth.LegacyHasher{})

	sig, err := other.Sign(msg)
	require.NoError(t, err)

	address, ok, err := svc.CheckChallenge(ctx, msg.ChallengeHash(), sig)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, address)

	// the legitimate holder can still use the challenge
	sig, err = signer.Sign(msg)
	require.NoError(t, err)
	address, ok, err = svc.CheckChallenge(ctx, msg.ChallengeHash(), sig)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testAddress, address)
}

func TestCheckChallenge_StaleChallengeAfterReissue(t *testing.T) {
	svc, signer := newTestService(t, store.NewMemoryStore(0))
	ctx := context.Background()

	stale, err := svc.CreateChallenge(ctx, testAddress)
	require.NoError(t, err)
	fresh, err := svc.CreateChallenge(ctx, testAddress)
	require.NoError(t, err)

	staleSig, err := signer.Sign(stale)
	require.NoError(t, err)
	_, ok, err := svc.CheckChallenge(ctx, stale.ChallengeHash(), staleSig)
	require.NoError(t, err)
	assert.False(t, ok)

	freshSig, err := signer.Sign(fresh)
	require.NoError(t, err)
	_, ok, err = svc.CheckChallenge(ctx, fresh.ChallengeHash(), freshSig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckChallenge_ExpiredChallenge(t *testing.T) {
	svc, signer := newTestService(t, store.NewMemoryStore(time.Nanosecond))
	ctx := context.Background()

	msg, err := svc.CreateChallenge(ctx, testAddress)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	sig, err := signer.Sign(msg)
	require.NoError(t, err)
	_, ok, err := svc.CheckChallenge(ctx, msg.ChallengeHash(), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckChallenge_RecoveryFailure(t *testing.T) {
	mockStore := new(MockChallengeStore)
	svc, err := NewAuthService(
		Config{Banner: testBanner},
		mockStore,
		fakeRecoverer{err: core.ErrInvalidSignature},
		nil, nil, zerolog.Nop(),
	)
	require.NoError(t, err)

	_, ok, err := svc.CheckChallenge(context.Background(), "hash", "signature")
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
	assert.False(t, ok)
	mockStore.AssertNotCalled(t, "GetChallenge", mock.Anything, mock.Anything)
}

func TestCheckChallenge_StoreFailures(t *testing.T) {
	storeErr := errors.New("connection reset")

	t.Run("get", func(t *testing.T) {
		mockStore := new(MockChallengeStore)
		mockStore.On("GetChallenge", mock.Anything, lowerCased).Return("", false, storeErr)

		svc, err := NewAuthService(Config{Banner: testBanner}, mockStore, fakeRecoverer{address: testAddress}, nil, nil, zerolog.Nop())
		require.NoError(t, err)

		_, ok, err := svc.CheckChallenge(context.Background(), "hash", "signature")
		assert.ErrorIs(t, err, storeErr)
		assert.ErrorIs(t, err, core.ErrStoreOperationFailed)
		assert.False(t, ok)
	})

	t.Run("consume", func(t *testing.T) {
		mockStore := new(MockChallengeStore)
		mockStore.On("GetChallenge", mock.Anything, lowerCased).Return("hash", true, nil)
		mockStore.On("ConsumeChallenge", mock.Anything, lowerCased, "hash").Return(false, storeErr)

		svc, err := NewAuthService(Config{Banner: testBanner}, mockStore, fakeRecoverer{address: testAddress}, nil, nil, zerolog.Nop())
		require.NoError(t, err)

		_, ok, err := svc.CheckChallenge(context.Background(), "hash", "signature")
		assert.ErrorIs(t, err, storeErr)
		assert.ErrorIs(t, err, core.ErrStoreOperationFailed)
		assert.False(t, ok)
		mockStore.AssertNotCalled(t, "DeleteChallenge", mock.Anything, mock.Anything)
	})
}

func TestCheckChallenge_ConsumeUsesComparedHash(t *testing.T) {
	mockStore := new(MockChallengeStore)
	mockStore.On("GetChallenge", mock.Anything, lowerCased).Return("hash", true, nil)
	mockStore.On("ConsumeChallenge", mock.Anything, lowerCased, "hash").Return(true, nil)

	svc, err := NewAuthService(Config{Banner: testBanner}, mockStore, fakeRecoverer{address: testAddress}, nil, nil, zerolog.Nop())
	require.NoError(t, err)

	address, ok, err := svc.CheckChallenge(context.Background(), "hash", "signature")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testAddress, address)
	mockStore.AssertExpectations(t)
	mockStore.AssertNotCalled(t, "DeleteChallenge", mock.Anything, mock.Anything)
}

// reissuingStore issues a new challenge for the address right after the
// pending one has been read, before the verifier consumes it.
type reissuingStore struct {
	*store.MemoryStore
	reissue func()
	once    sync.Once
}

func (s *reissuingStore) GetChallenge(ctx context.Context, address string) (string, bool, error) {
	hash, found, err := s.MemoryStore.GetChallenge(ctx, address)
	s.once.Do(s.reissue)
	return hash, found, err
}

func TestCheckChallenge_ReissueDuringVerification(t *testing.T) {
	ctx := context.Background()
	s := &reissuingStore{MemoryStore: store.NewMemoryStore(0)}
	svc, signer := newTestService(t, s.MemoryStore)

	stale, err := svc.CreateChallenge(ctx, testAddress)
	require.NoError(t, err)

	var fresh core.ChallengeMessage
	s.reissue = func() {
		var reissueErr error
		fresh, reissueErr = svc.CreateChallenge(ctx, testAddress)
		require.NoError(t, reissueErr)
	}

	racing, err := NewAuthService(Config{Banner: testBanner}, s, eth.NewRecoverer(eth.LegacyHasher{}), nil, nil, zerolog.Nop())
	require.NoError(t, err)

	staleSig, err := signer.Sign(stale)
	require.NoError(t, err)
	_, ok, err := racing.CheckChallenge(ctx, stale.ChallengeHash(), staleSig)
	require.NoError(t, err)
	assert.False(t, ok)

	pending, found, err := s.MemoryStore.GetChallenge(ctx, lowerCased)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, fresh.ChallengeHash(), pending)

	freshSig, err := signer.Sign(fresh)
	require.NoError(t, err)
	address, ok, err := svc.CheckChallenge(ctx, fresh.ChallengeHash(), freshSig)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testAddress, address)
}

func TestCheckChallenge_MismatchDoesNotDelete(t *testing.T) {
	mockStore := new(MockChallengeStore)
	mockStore.On("GetChallenge", mock.Anything, lowerCased).Return("live", true, nil)

	svc, err := NewAuthService(Config{Banner: testBanner}, mockStore, fakeRecoverer{address: testAddress}, nil, nil, zerolog.Nop())
	require.NoError(t, err)

	_, ok, err := svc.CheckChallenge(context.Background(), "LIVE", "signature")
	require.NoError(t, err)
	assert.False(t, ok)
	mockStore.AssertNotCalled(t, "DeleteChallenge", mock.Anything, mock.Anything)
	mockStore.AssertNotCalled(t, "ConsumeChallenge", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckChallenge_ConcurrentAttemptsSucceedOnce(t *testing.T) {
	svc, signer := newTestService(t, store.NewMemoryStore(0))
	ctx := context.Background()

	msg, err := svc.CreateChallenge(ctx, testAddress)
	require.NoError(t, err)
	sig, err := signer.Sign(msg)
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := svc.CheckChallenge(ctx, msg.ChallengeHash(), sig)
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestCheckChallenge_PublishesEvent(t *testing.T) {
	for name, publishErr := range map[string]error{"ok": nil, "publish failure": errors.New("broker down")} {
		t.Run(name, func(t *testing.T) {
			pub := new(MockEventPublisher)
			pub.On("PublishAuthenticated", mock.Anything, testAddress, mock.AnythingOfType("time.Time")).Return(publishErr)

			signer, err := eth.NewSignerFromHex(testKey, eth.LegacyHasher{})
			require.NoError(t, err)
			svc, err := NewAuthService(
				Config{Banner: testBanner},
				store.NewMemoryStore(0),
				eth.NewRecoverer(eth.LegacyHasher{}),
				nil, pub, zerolog.Nop(),
			)
			require.NoError(t, err)

			ctx := context.Background()
			msg, err := svc.CreateChallenge(ctx, testAddress)
			require.NoError(t, err)
			sig, err := signer.Sign(msg)
			require.NoError(t, err)

			_, ok, err := svc.CheckChallenge(ctx, msg.ChallengeHash(), sig)
			require.NoError(t, err)
			assert.True(t, ok)
			pub.AssertExpectations(t)
		})
	}
}

func TestIssueReceipt(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tk := tokenizer.NewJWTTokenizer(key)

	svc, err := NewAuthService(
		Config{Banner: testBanner, ReceiptTTL: time.Minute},
		store.NewMemoryStore(0),
		fakeRecoverer{},
		tk, nil, zerolog.Nop(),
	)
	require.NoError(t, err)

	token, auth, err := svc.IssueReceipt(testAddress)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, auth.ExpiresAt.Sub(auth.IssuedAt))

	parsed, err := tk.TokenToAuthentication(token)
	require.NoError(t, err)
	assert.Equal(t, testAddress, parsed.Address)
	assert.Equal(t, auth.ID, parsed.ID)

	noReceipts, err := NewAuthService(Config{Banner: testBanner}, store.NewMemoryStore(0), fakeRecoverer{}, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	_, _, err = noReceipts.IssueReceipt(testAddress)
	assert.Error(t, err)
}

func TestValidateReceipt(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	svc, err := NewAuthService(
		Config{Banner: testBanner, ReceiptTTL: time.Minute},
		store.NewMemoryStore(0),
		fakeRecoverer{},
		tokenizer.NewJWTTokenizer(key), nil, zerolog.Nop(),
	)
	require.NoError(t, err)

	token, issued, err := svc.IssueReceipt(testAddress)
	require.NoError(t, err)

	auth, err := svc.ValidateReceipt(token)
	require.NoError(t, err)
	assert.Equal(t, testAddress, auth.Address)
	assert.Equal(t, issued.ID, auth.ID)

	_, err = svc.ValidateReceipt("not-a-token")
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	noReceipts, err := NewAuthService(Config{Banner: testBanner}, store.NewMemoryStore(0), fakeRecoverer{}, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	_, err = noReceipts.ValidateReceipt(token)
	assert.Error(t, err)
}
