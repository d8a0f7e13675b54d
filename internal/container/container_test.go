package container

import (
	"context"
	"path/filepath"
	"testing"

	"fjacquet/ebics-mt940/internal/config"
	"fjacquet/ebics-mt940/internal/envelope"
	"fjacquet/ebics-mt940/internal/factory"
	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/publisher"
	"fjacquet/ebics-mt940/internal/secrets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	c := &config.Config{}
	c.Log.Level = "info"
	c.Log.Format = "text"
	c.CSV.Delimiter = ","
	c.EBICS.URL = "https://bank.example/ebicsweb"
	c.EBICS.HostID = "HOST1"
	c.EBICS.PartnerID = "PARTNER1"
	c.EBICS.UserID = "USER1"
	c.EBICS.SignatureVersion = envelope.SignatureA006
	c.EBICS.TimeoutSeconds = 30
	c.EBICS.KeySource = "file"
	c.EBICS.KeysDir = filepath.Join(dir, "keys")
	c.EBICS.BankKeysFile = filepath.Join(dir, "bankkeys.yaml")
	c.BPD.Backend = "file"
	c.BPD.Directory = filepath.Join(dir, "bpd")
	return c
}

func TestNewContainer(t *testing.T) {
	ctx := context.Background()

	_, err := NewContainer(ctx, nil)
	assert.EqualError(t, err, "configuration cannot be nil")

	logger := logging.NewMockLogger()
	c, err := NewContainer(ctx, testConfig(t), WithLogger(logger))
	require.NoError(t, err)
	defer func() { assert.NoError(t, c.Close()) }()

	assert.Same(t, logger, c.GetLogger())
	assert.NotNil(t, c.GetConfig())
	assert.NotNil(t, c.GetBPDStore())
	assert.NotNil(t, c.GetBankKeyStore())
	assert.IsType(t, publisher.NopPublisher{}, c.GetPublisher())
	assert.IsType(t, &secrets.FileSource{}, c.GetKeySource())
	assert.Equal(t, "PARTNER1-USER1", c.KeyPrefix())
	assert.True(t, logger.HasEntry("INFO", "Container initialized successfully"))

	for _, pt := range []factory.ParserType{factory.MT940, factory.MT942} {
		p, err := c.GetParser(pt)
		require.NoError(t, err)
		assert.NotNil(t, p)
	}
	_, err = c.GetParser("camt")
	assert.Error(t, err)
}

func TestNewContainer_InvalidBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.BPD.Backend = "redis"
	_, err := NewContainer(context.Background(), cfg, WithLogger(logging.NewMockLogger()))
	assert.ErrorContains(t, err, "failed to create BPD store")
}

func TestContainer_EBICSClient(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	c, err := NewContainer(ctx, cfg, WithLogger(logging.NewMockLogger()))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	_, err = c.GetEBICSClient(ctx)
	assert.ErrorIs(t, err, secrets.ErrNotFound)

	keys, err := envelope.GenerateUserKeys(1024, envelope.SignatureA006)
	require.NoError(t, err)
	require.NoError(t, secrets.SaveUserKeys(ctx, c.GetKeySource(), c.KeyPrefix(), keys))

	client, err := c.GetEBICSClient(ctx)
	require.NoError(t, err)
	ec := client.Config()
	assert.Equal(t, "HOST1", ec.HostID)
	assert.Equal(t, "PARTNER1", ec.PartnerID)
	assert.Equal(t, cfg.Timeout(), ec.Timeout)
	assert.Nil(t, ec.BankKeys, "no HPB yet")
	assert.True(t, keys.Signature.Equal(ec.UserKeys.Signature))

	again, err := c.GetEBICSClient(ctx)
	require.NoError(t, err)
	assert.Same(t, client, again)
}

func TestContainer_EBICSConfigWithBankKeys(t *testing.T) {
	ctx := context.Background()
	src := secrets.NewFileSource(t.TempDir())
	c, err := NewContainer(ctx, testConfig(t), WithLogger(logging.NewMockLogger()), WithKeySource(src))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	user, err := envelope.GenerateUserKeys(1024, envelope.SignatureA006)
	require.NoError(t, err)
	require.NoError(t, secrets.SaveUserKeys(ctx, src, c.KeyPrefix(), user))
	bank := &envelope.BankKeys{
		AuthenticationVersion: envelope.AuthenticationX002,
		Authentication:        &user.Authentication.PublicKey,
		EncryptionVersion:     envelope.EncryptionE002,
		Encryption:            &user.Encryption.PublicKey,
	}
	require.NoError(t, c.GetBankKeyStore().SaveBankKeys("HOST1", bank))

	ec, err := c.EBICSConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, ec.BankKeys)
	assert.True(t, bank.Encryption.Equal(ec.BankKeys.Encryption))
}
