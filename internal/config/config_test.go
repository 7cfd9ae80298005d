package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KRAMIK_JWT_SECRET", "secret")
	t.Setenv("KRAMIK_OWNER_ADDRESS", "0x00000000000000000000000000000000000000aa")
	t.Setenv("KRAMIK_DATABASE_URL", "postgres://localhost/kramik")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateServer())

	require.Equal(t, "Kramik Ledger API", cfg.AppName)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, uint64(1337), cfg.ChainID)
	require.Equal(t, common.HexToAddress("0xaa"), cfg.OwnerAddress)
	require.Equal(t, 24*time.Hour, cfg.JWTTTL)
	require.Equal(t, 5*time.Minute, cfg.CreditsCacheTTL)
	require.Equal(t, 30*time.Second, cfg.WriteTimeout)
	require.Equal(t, "@every 15s", cfg.RelaySchedule)
	require.True(t, cfg.RequireRegisteredStudent)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KRAMIK_CHAIN_ID", "31337")
	t.Setenv("KRAMIK_LEDGER_REQUIRE_REGISTERED_STUDENT", "false")
	t.Setenv("KRAMIK_ADAPTER_CONFIRM_WINDOW", "2m")
	t.Setenv("KRAMIK_APP_PORT", ":9090")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, uint64(31337), cfg.ChainID)
	require.False(t, cfg.RequireRegisteredStudent)
	require.Equal(t, 2*time.Minute, cfg.ConfirmWindow)
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Error(t, cfg.ValidateServer())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("owner", func(t *testing.T) {
		t.Setenv("KRAMIK_OWNER_ADDRESS", "not-an-address")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("duration", func(t *testing.T) {
		t.Setenv("KRAMIK_JWT_TTL", "forever")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("chain id", func(t *testing.T) {
		t.Setenv("KRAMIK_CHAIN_ID", "0")
		_, err := Load()
		require.Error(t, err)
	})
}
