package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestOfferManager_ExpiryRegenerates(t *testing.T) {
	mock := clock.NewMock()
	backend := newFakeBackend()
	m := NewOfferManager(backend, mock, nil)
	defer m.Close()

	tokenA, err := m.Open(context.Background(), 60)
	require.NoError(t, err)
	assert.Equal(t, "offer-1", tokenA.Payload)
	assert.Equal(t, 60*time.Second, tokenA.TTL)
	assert.True(t, m.Accepts("offer-1"))

	advance(mock, 59*time.Second)
	assert.True(t, m.Accepts("offer-1"), "токен должен действовать до истечения TTL")

	mock.Add(time.Second)
	assert.False(t, m.Accepts("offer-1"), "токен A не должен приниматься после createdAt+ttl")

	eventually(t, func() bool { return m.Accepts("offer-2") }, "токен B должен появиться после истечения A")
	tokenB, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, mock.Now(), tokenB.CreatedAt)
	assert.Equal(t, tokenA.TTL, tokenB.TTL, "TTL фиксирован на время открытого экрана")
	assert.Greater(t, tokenB.Seq, tokenA.Seq)
}

func TestOfferManager_ClampsTTL(t *testing.T) {
	m := NewOfferManager(newFakeBackend(), clock.NewMock(), nil)
	defer m.Close()

	token, err := m.Open(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, token.TTL)

	token, err = m.Open(context.Background(), 100000)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, token.TTL)
}

func TestOfferManager_StaleResultDiscarded(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := NewMockIBackend(ctrl)

	entered := make(chan struct{})
	release := make(chan struct{})

	gomock.InOrder(
		backend.EXPECT().GenerateOffer(gomock.Any()).Return("first", nil),
		backend.EXPECT().GenerateOffer(gomock.Any()).DoAndReturn(func(context.Context) (string, error) {
			close(entered)
			<-release
			return "stale", nil
		}),
		backend.EXPECT().GenerateOffer(gomock.Any()).Return("fresh", nil),
	)

	m := NewOfferManager(backend, clock.NewMock(), nil)
	defer m.Close()

	_, err := m.Open(context.Background(), 60)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var staleErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, staleErr = m.Generate(context.Background())
	}()
	<-entered

	fresh, err := m.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", fresh.Payload)

	close(release)
	wg.Wait()

	assert.True(t, errors.Is(staleErr, ErrOfferSuperseded), "устаревший результат должен быть отброшен")
	assert.Equal(t, CodeSuperseded, CodeOf(staleErr))

	current, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "fresh", current.Payload)
	assert.False(t, m.Accepts("stale"))
	assert.False(t, m.Accepts("first"))
}

func TestOfferManager_GenerationFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.offerErr = errors.New("ice gathering failed")
	m := NewOfferManager(backend, clock.NewMock(), nil)
	defer m.Close()

	var reported error
	m.SetErrorCallback(func(err error) { reported = err })

	_, err := m.Open(context.Background(), 60)
	require.Error(t, err)
	assert.Equal(t, CodeBackendFailure, CodeOf(err))
	assert.Equal(t, err, reported)

	_, ok := m.Current()
	assert.False(t, ok, "без успешной генерации действующего токена нет")
	assert.Zero(t, m.Remaining())
}

func TestOfferManager_CloseStopsRegeneration(t *testing.T) {
	mock := clock.NewMock()
	backend := newFakeBackend()
	m := NewOfferManager(backend, mock, nil)

	_, err := m.Open(context.Background(), 60)
	require.NoError(t, err)
	m.Close()

	assert.False(t, m.IsOpen())
	_, ok := m.Current()
	assert.False(t, ok)

	advance(mock, 2*time.Minute)
	backend.mu.Lock()
	offers := backend.offers
	backend.mu.Unlock()
	assert.Equal(t, 1, offers, "после закрытия экрана регенерации нет")

	_, err = m.Generate(context.Background())
	assert.True(t, errors.Is(err, ErrOfferClosed))
}

func TestOfferManager_FreezeKeepsToken(t *testing.T) {
	mock := clock.NewMock()
	backend := newFakeBackend()
	m := NewOfferManager(backend, mock, nil)
	defer m.Close()

	var expired []OfferToken
	var mu sync.Mutex
	m.SetExpiredCallback(func(tok OfferToken) {
		mu.Lock()
		expired = append(expired, tok)
		mu.Unlock()
	})

	_, err := m.Open(context.Background(), 60)
	require.NoError(t, err)
	m.Freeze()

	advance(mock, 30*time.Second)
	assert.True(t, m.Accepts("offer-1"), "замороженный токен действует до своего истечения")

	mock.Add(30 * time.Second)
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(expired) == 1
	}, "колбэк истечения должен сработать")

	time.Sleep(10 * time.Millisecond)
	_, ok := m.Current()
	assert.False(t, ok, "во время заморозки новый токен не создается")
}

func TestOfferManager_Countdown(t *testing.T) {
	mock := clock.NewMock()
	m := NewOfferManager(newFakeBackend(), mock, nil)
	defer m.Close()

	ticks := make(chan time.Duration, 8)
	m.SetTickCallback(func(left time.Duration) {
		select {
		case ticks <- left:
		default:
		}
	})

	_, err := m.Open(context.Background(), 60)
	require.NoError(t, err)

	mock.Add(time.Second)
	select {
	case left := <-ticks:
		assert.Equal(t, 59*time.Second, left)
	case <-time.After(time.Second):
		t.Fatal("❌ тик обратного отсчета не получен")
	}
	assert.Equal(t, 59*time.Second, m.Remaining())
}

func TestOfferToken_ValidAt(t *testing.T) {
	created := time.Unix(1000, 0)
	tok := OfferToken{Payload: "p", CreatedAt: created, TTL: time.Minute}

	assert.True(t, tok.ValidAt(created))
	assert.True(t, tok.ValidAt(created.Add(59*time.Second)))
	assert.False(t, tok.ValidAt(created.Add(time.Minute)))
	assert.False(t, tok.ValidAt(created.Add(time.Hour)))
}
