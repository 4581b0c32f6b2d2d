package xmpp

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gosrc.io/xmpp"
	"gosrc.io/xmpp/stanza"

	"github.com/burdenmint/burdenmint/internal/filecache"
)

// Deliverer pushes text and files to chat users. Files are parked in the file
// cache and sent as XEP-0066 out-of-band links.
type Deliverer struct {
	sender    xmpp.Sender
	from      string
	files     filecache.Store
	publicURL string
}

func NewDeliverer(sender xmpp.Sender, from string, files filecache.Store, publicURL string) *Deliverer {
	return &Deliverer{
		sender:    sender,
		from:      from,
		files:     files,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}
}

func (d *Deliverer) SendText(_ context.Context, to, body string) error {
	msg := stanza.Message{
		Attrs: stanza.Attrs{From: d.from, To: to, Type: "chat"},
		Body:  body,
	}
	if err := d.sender.Send(msg); err != nil {
		return fmt.Errorf("sending message to %s: %w", to, err)
	}
	return nil
}

// SendFile uploads the file at path and sends its download link to to.
func (d *Deliverer) SendFile(ctx context.Context, to, path, caption string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	name := filepath.Base(path)
	id, err := d.files.Put(ctx, filecache.File{Name: name, ContentType: contentType(name, data), Data: data})
	if err != nil {
		return err
	}
	link := d.publicURL + "/api/files/" + id

	msg := stanza.Message{
		Attrs: stanza.Attrs{From: d.from, To: to, Type: "chat"},
		Body:  caption + "\n" + link,
		Extensions: []stanza.MsgExtension{
			stanza.OOB{URL: link, Desc: caption},
		},
	}
	if err := d.sender.Send(msg); err != nil {
		return fmt.Errorf("sending file to %s: %w", to, err)
	}

	slog.Debug("file delivered", "to", to, "file_id", id, "name", name)
	return nil
}

func contentType(name string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
