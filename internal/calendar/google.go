package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/wolfman30/booking-agent/internal/business"
)

var tracer = otel.Tracer("booking-agent/calendar")

// CredentialSource returns the stored calendar grant of a tenant.
type CredentialSource interface {
	CalendarCredentials(ctx context.Context, tenantID string) (business.CalendarCredentials, error)
}

// GoogleConfig holds OAuth client settings.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	// ClientOptions are appended to every service; tests use them to point
	// at a local endpoint.
	ClientOptions []option.ClientOption
}

// GoogleClient implements Client with Google Calendar v3.
type GoogleClient struct {
	oauth *oauth2.Config
	creds CredentialSource
	opts  []option.ClientOption
}

func NewGoogleClient(cfg GoogleConfig, creds CredentialSource) *GoogleClient {
	if creds == nil {
		panic("calendar: credential source cannot be nil")
	}
	return &GoogleClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gcal.CalendarScope},
		},
		creds: creds,
		opts:  cfg.ClientOptions,
	}
}

func (c *GoogleClient) service(ctx context.Context, tenantID string) (*gcal.Service, string, error) {
	creds, err := c.creds.CalendarCredentials(ctx, tenantID)
	if err != nil {
		return nil, "", fmt.Errorf("calendar: load credentials: %w", err)
	}
	calendarID := creds.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	opts := []option.ClientOption{option.WithTokenSource(c.oauth.TokenSource(ctx, creds.Token))}
	opts = append(opts, c.opts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("calendar: create service: %w", err)
	}
	return svc, calendarID, nil
}

func (c *GoogleClient) BusyIntervals(ctx context.Context, tenantID string, from, to time.Time) ([]Interval, error) {
	ctx, span := tracer.Start(ctx, "calendar.freebusy")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	svc, calendarID, err := c.service(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	resp, err := svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("calendar: freebusy query: %w", err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return []Interval{}, nil
	}
	if len(cal.Errors) > 0 {
		reasons := make([]string, 0, len(cal.Errors))
		for _, e := range cal.Errors {
			reasons = append(reasons, e.Reason)
		}
		return nil, fmt.Errorf("calendar: freebusy errors: %s", strings.Join(reasons, ", "))
	}

	busy := make([]Interval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse busy start %q: %w", p.Start, err)
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse busy end %q: %w", p.End, err)
		}
		busy = append(busy, Interval{Start: start, End: end})
	}
	return busy, nil
}

func (c *GoogleClient) InsertEvent(ctx context.Context, tenantID string, ev Event) (string, error) {
	ctx, span := tracer.Start(ctx, "calendar.insert_event")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	svc, calendarID, err := c.service(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	overrides := make([]*gcal.EventReminder, 0, len(ev.ReminderMinutes))
	for _, m := range ev.ReminderMinutes {
		overrides = append(overrides, &gcal.EventReminder{Method: "popup", Minutes: m})
	}
	created, err := svc.Events.Insert(calendarID, &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: ev.TimeZone},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: ev.TimeZone},
		Reminders: &gcal.EventReminders{
			UseDefault:      false,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		},
	}).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("calendar: insert event: %w", err)
	}
	if created.Id == "" {
		return "", errors.New("calendar: insert returned no event id")
	}
	return created.Id, nil
}

func (c *GoogleClient) DeleteEvent(ctx context.Context, tenantID, eventID string) error {
	ctx, span := tracer.Start(ctx, "calendar.delete_event")
	defer span.End()

	svc, calendarID, err := c.service(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("calendar: delete event: %w", err)
	}
	return nil
}
