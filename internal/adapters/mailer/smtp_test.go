package mailer

import (
	"testing"

	"github.com/htpdf/htpdf/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSMTPSender(t *testing.T) {
	t.Run("requires a host", func(t *testing.T) {
		_, err := NewSMTPSender(SMTPSenderOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SMTP host is required")
	})

	t.Run("defaults attachment resolution to identity", func(t *testing.T) {
		sender, err := NewSMTPSender(SMTPSenderOptions{
			Config: config.EmailConfig{Host: "localhost"},
		})
		require.NoError(t, err)
		assert.Equal(t, "/tmp/pdfs/a.pdf", sender.resolveAttachment("/tmp/pdfs/a.pdf"))
	})

	t.Run("uses the configured attachment resolver", func(t *testing.T) {
		sender, err := NewSMTPSender(SMTPSenderOptions{
			Config: config.EmailConfig{Host: "localhost"},
			ResolveAttachment: func(path string) string {
				return "/var/pdfs/" + path
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "/var/pdfs/a.pdf", sender.resolveAttachment("a.pdf"))
	})
}
