package studentscorner

import (
	"context"
	"studentscorner-backend/internal/components/assert"
	"studentscorner-backend/internal/components/telemetry"
)

const (
	report_portal_new_client = "portal.new-client"
	report_portal_parse      = "portal.parse"
)

// Portal scrapes transcripts off of the portal, every call to Scrape logs in
// with a brand new session.
type Portal struct {
	opts ClientOptions
	tel  telemetry.API
}

func NewPortal(opts ClientOptions, tel telemetry.API) Portal {
	assert.NotNil(tel)
	return Portal{
		opts: opts.withDefaults(),
		tel:  tel,
	}
}

func (p Portal) Scrape(ctx context.Context, acc Account) (Transcript, error) {
	client, err := NewClient(p.opts, p.tel)
	if err != nil {
		p.tel.ReportBroken(report_portal_new_client, err, p.opts.BaseUrl)
		return Transcript{}, &Error{Kind: KindUnexpected, Op: "create client", Err: err}
	}

	page, err := client.LoginAndFetch(ctx, acc.RollNumber, acc.Password)
	if err != nil {
		return Transcript{}, err
	}

	transcript := Parse(page)
	if len(transcript.Semesters) == 0 {
		// usually means the portal served the login page again
		p.tel.ReportWarning(report_portal_parse, "no semesters found", acc.RollNumber)
	}
	return transcript, nil
}
