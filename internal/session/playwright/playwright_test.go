package playwright

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	pw "github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

type foreignElement struct{}

func (foreignElement) Describe() string { return "foreign" }

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Config{}.withDefaults()
	require.NoError(t, err)
	require.Equal(t, defaultNavigationTimeout, cfg.NavigationTimeout)
	require.Equal(t, defaultActionTimeout, cfg.ActionTimeout)

	cfg, err = Config{ActionTimeout: 2 * time.Second}.withDefaults()
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.ActionTimeout)

	_, err = Config{NavigationTimeout: -time.Second}.withDefaults()
	require.Error(t, err)
}

func TestAncestorSelector(t *testing.T) {
	t.Parallel()

	require.Equal(t, "xpath=ancestor::table[1]", ancestorSelector(" TABLE "))
}

func TestMillis(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1500, millis(1500*time.Millisecond), 0)
	require.InDelta(t, 1, millis(0), 0)
	require.InDelta(t, 1, millis(-time.Second), 0)
}

func TestIsTimeout(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("locator.waitFor: %w", pw.ErrTimeout)
	require.True(t, isTimeout(context.Background(), wrapped))
	require.False(t, isTimeout(context.Background(), errors.New("target closed")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, isTimeout(ctx, wrapped))
}

func TestBudgetHonoursDeadlineAndRelease(t *testing.T) {
	t.Parallel()

	s := &Session{cfg: Config{ActionTimeout: time.Minute}}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	limit, err := s.budget(ctx, time.Minute)
	require.NoError(t, err)
	require.LessOrEqual(t, *limit, float64(2000))

	limit, err = s.budget(context.Background(), 3*time.Second)
	require.NoError(t, err)
	require.InDelta(t, 3000, *limit, 0)

	require.NoError(t, s.Release())
	require.NoError(t, s.Release())
	_, err = s.budget(context.Background(), time.Second)
	require.ErrorIs(t, err, catalog.ErrSessionReleased)
	require.ErrorIs(t, s.Navigate(context.Background(), "https://shop"), catalog.ErrSessionReleased)
}

func TestElementRejectsForeignHandle(t *testing.T) {
	t.Parallel()

	s := &Session{cfg: Config{ActionTimeout: time.Second}}
	_, err := s.ReadText(context.Background(), foreignElement{})
	require.ErrorIs(t, err, catalog.ErrElementMissing)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.ReadText(ctx, foreignElement{})
	require.ErrorIs(t, err, context.Canceled)
}
