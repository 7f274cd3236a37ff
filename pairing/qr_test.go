package pairing

import (
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQRPayloadFormatsCommaJoinedBase64Fields(t *testing.T) {
	noisePub := [32]byte{1}
	identityPub := [32]byte{2}
	advSecret := []byte{3, 3, 3}

	payload := BuildQRPayload("R1", noisePub, identityPub, advSecret)
	parts := strings.Split(payload, ",")
	require.Len(t, parts, 4)
	assert.Equal(t, "R1", parts[0])
	assert.Equal(t, base64.StdEncoding.EncodeToString(noisePub[:]), parts[1])
	assert.Equal(t, base64.StdEncoding.EncodeToString(identityPub[:]), parts[2])
	assert.Equal(t, base64.StdEncoding.EncodeToString(advSecret), parts[3])
}

func TestQRRotatorEmitsFirstRefImmediately(t *testing.T) {
	var mu sync.Mutex
	var payloads []string
	r := NewQRRotator([]string{"R1", "R2"}, [32]byte{}, [32]byte{}, nil, func(p string) {
		mu.Lock()
		defer mu.Unlock()
		payloads = append(payloads, p)
	})
	r.Start()
	defer r.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, payloads, 1)
	assert.True(t, strings.HasPrefix(payloads[0], "R1,"))
}

func TestQRRotatorStopCancelsPendingRotation(t *testing.T) {
	var mu sync.Mutex
	count := 0
	r := NewQRRotator([]string{"R1", "R2"}, [32]byte{}, [32]byte{}, nil, func(string) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})
	// Stop right after Start, while the 60-second rotation timer is still pending.
	r.Start()
	r.Stop()

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "Stop after the first emission must prevent the scheduled rotation from firing")
}

func TestQRRotatorAddRefsExtendsTheList(t *testing.T) {
	r := NewQRRotator([]string{"R1"}, [32]byte{}, [32]byte{}, nil, func(string) {})
	r.AddRefs("R2", "R3")
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []string{"R1", "R2", "R3"}, r.refs)
}
