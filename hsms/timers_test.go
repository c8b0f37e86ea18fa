package hsms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimers(t *testing.T) {
	require := require.New(t)

	def := DefaultTimers()
	require.Equal(45*time.Second, def.T3)
	require.Equal(10*time.Second, def.T5)
	require.Equal(5*time.Second, def.T6)
	require.Equal(10*time.Second, def.T7)
	require.Equal(20*time.Second, def.T8)
	require.Equal(10*time.Second, def.LinkTest)
	require.NoError(def.Validate())

	timers := NewTimers(time.Second, 2*time.Second, 3*time.Second, 4*time.Second, 5*time.Second, 6*time.Second)
	require.Equal(Timers{
		T3: time.Second, T5: 2 * time.Second, T6: 3 * time.Second,
		T7: 4 * time.Second, T8: 5 * time.Second, LinkTest: 6 * time.Second,
	}, timers)
	require.NoError(timers.Validate())

	timers.T6 = time.Millisecond
	err := timers.Validate()
	require.ErrorIs(err, ErrInvalidTimer)
	require.Contains(err.Error(), "t6 timeout")

	timers = DefaultTimers()
	timers.T3 = 121 * time.Second
	require.ErrorIs(timers.Validate(), ErrInvalidTimer)
}

func TestTimerCode(t *testing.T) {
	require := require.New(t)

	require.Equal("T3", T3.String())
	require.ErrorIs(T3.Err(), ErrT3Timeout)
	require.ErrorIs(T5.Err(), ErrT5Timeout)
	require.ErrorIs(T6.Err(), ErrT6Timeout)
	require.ErrorIs(T7.Err(), ErrT7Timeout)
	require.ErrorIs(T8.Err(), ErrT8Timeout)
	require.NoError(TimerCode(4).Err())
}
