package tokensvc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"clewdr-go/internal/credential"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireCachesUntilSkewWindow(t *testing.T) {
	svc := New(time.Second)
	var calls int32
	svc.mintFunc = func(ctx context.Context, cred *credential.Credential) (string, time.Time, error) {
		atomic.AddInt32(&calls, 1)
		return "tok-1", time.Now().Add(time.Hour), nil
	}
	cred := credential.NewOAuthCredential("o1", "id", "secret", "refresh")

	tok, err := svc.Acquire(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	tok2, err := svc.Acquire(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestInvalidateForcesRemint(t *testing.T) {
	svc := New(time.Second)
	var calls int32
	svc.mintFunc = func(ctx context.Context, cred *credential.Credential) (string, time.Time, error) {
		n := atomic.AddInt32(&calls, 1)
		return "tok-" + string(rune('0'+n)), time.Now().Add(time.Hour), nil
	}
	cred := credential.NewOAuthCredential("o2", "id", "secret", "refresh")

	tok, err := svc.Acquire(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	svc.Invalidate(cred.ID)

	tok2, err := svc.Acquire(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok2)
}

func TestAcquireRejectsNonGrantKinds(t *testing.T) {
	svc := New(time.Second)
	cred := credential.NewKeyCredential("k1", "sk-test")
	_, err := svc.Acquire(context.Background(), cred)
	assert.Error(t, err)
}

func TestConcurrentAcquireSingleFlights(t *testing.T) {
	svc := New(time.Second)
	var calls int32
	release := make(chan struct{})
	svc.mintFunc = func(ctx context.Context, cred *credential.Credential) (string, time.Time, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "tok", time.Now().Add(time.Hour), nil
	}
	cred := credential.NewOAuthCredential("o3", "id", "secret", "refresh")

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			_, _ = svc.Acquire(context.Background(), cred)
			done <- struct{}{}
		}()
	}
	close(release)
	for i := 0; i < 5; i++ {
		<-done
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
