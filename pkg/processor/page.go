package processor

import (
	"context"
	"strings"
	"time"
)

// Page is the browser view of the message currently open.
type Page interface {
	// ActionReady reports whether the enabled "save all" affordance of item id is present.
	ActionReady(ctx context.Context, id string) (bool, error)

	// Changes streams DOM mutation notifications until detach is called.
	Changes(ctx context.Context) (changes <-chan struct{}, detach func(), err error)

	// TriggerAction dispatches pointer-down, pointer-up and click on the "save all" affordance.
	TriggerAction(ctx context.Context, id string) error

	// CompletionVisible reports whether the download success notification is shown.
	CompletionVisible(ctx context.Context) (bool, error)

	// RecordInfo reads the creation time and transmitter from the bound message record.
	// ok is false when the record is not inspectable.
	RecordInfo(ctx context.Context, id string) (info RecordInfo, ok bool, err error)

	// ProofAffordance returns the first label in labels whose proof affordance exists.
	ProofAffordance(ctx context.Context, id string, labels []string) (label string, ok bool, err error)

	// TriggerProof clicks the proof affordance with the given label.
	TriggerProof(ctx context.Context, id, label string) error
}

// Downloads reports in-flight browser downloads.
type Downloads interface {
	Pending() int
}

// RecordInfo is the optional filename enrichment read from the page.
type RecordInfo struct {
	CreationTime string
	Transmitter  string
}

// BaseName returns the artifact base filename. With record info it is
// "MJP_<creation date><transmitter>" without a trailing underscore, otherwise
// "Nachweis_<today>" using the UTC date of now.
func BaseName(info RecordInfo, ok bool, now time.Time) string {
	if ok {
		date, _, _ := strings.Cut(info.CreationTime, "T")
		if date != "" {
			return strings.TrimSuffix("MJP_"+date+info.Transmitter, "_")
		}
	}
	return "Nachweis_" + now.UTC().Format("2006-01-02")
}

// ProofFilename returns the HTML proof filename for base and token.
func ProofFilename(base, token string) string {
	return base + "_" + token + ".html"
}
