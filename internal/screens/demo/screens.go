package demo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/formflow/internal/application"
	"github.com/bnema/formflow/internal/domain"
	"github.com/bnema/formflow/internal/ports"
)

const (
	menuMailbox     = "menu"
	detailsStep     = "details"
	maxNameLength   = 16
	createTimeout   = 120 * time.Second
	defaultLocale   = "en-US"
	buttonBack      = "back"
	buttonCreate    = "create"
	buttonBrowse    = "browse"
	buttonQuit      = "quit"
	buttonConfirm   = "confirm"
	buttonEdit      = "edit"
	buttonCancel    = "cancel"
	guildButtonPref = "guild:"
)

var Colors = []string{"red", "green", "blue", "gold"}

// Flow builds the demo guild screens. The zero value is not usable; use
// NewFlow.
type Flow struct {
	registry *Registry
	clock    ports.Clock
	locale   string
	// ListDelay simulates a slow data source behind the guild list.
	ListDelay time.Duration
}

func NewFlow(registry *Registry, locale string, clock ports.Clock) *Flow {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if strings.TrimSpace(locale) == "" {
		locale = defaultLocale
	}
	return &Flow{registry: registry, clock: clock, locale: domain.CanonicalLocale(locale)}
}

func (f *Flow) Root() application.Screen {
	return &MainMenu{flow: f}
}

// MainMenu is the root screen.
type MainMenu struct {
	flow    *Flow
	message string
}

func (m *MainMenu) Name() string { return "MainMenu" }

func (m *MainMenu) Build(ctx context.Context, s *application.Session) (*domain.Form, error) {
	posted, ok, err := s.Take(ctx, menuMailbox)
	if err != nil {
		return nil, err
	}
	if ok {
		if name := posted.String("created"); name != "" {
			m.message = fmt.Sprintf("Guild %s created.", name)
		}
	}

	content := "What would you like to do?"
	if m.message != "" {
		content = m.message + "\n" + content
	}

	return &domain.Form{
		Kind:    domain.FormKindSimple,
		Title:   "Guilds",
		Content: content,
		Buttons: []domain.Button{
			{ID: buttonCreate, Label: "Create a guild"},
			{ID: buttonBrowse, Label: "Browse guilds"},
			{ID: buttonQuit, Label: "Quit"},
		},
	}, nil
}

func (m *MainMenu) OnResponse(ctx context.Context, s *application.Session, resp domain.Response) application.Outcome {
	m.message = ""
	if resp.Closed {
		return application.Close()
	}
	switch resp.Button {
	case buttonCreate:
		return application.Open(&CreateGuild{flow: m.flow})
	case buttonBrowse:
		return application.Open(&GuildList{flow: m.flow})
	case buttonQuit:
		return application.Close()
	default:
		return application.Invalid(fmt.Sprintf("unknown option %q", resp.Button))
	}
}

func (m *MainMenu) Resume(_ context.Context, _ *application.Session, data any) {
	if payload, ok := domain.AsPayload(data); ok {
		if name := payload.String("joined"); name != "" {
			m.message = fmt.Sprintf("You joined %s.", name)
		}
	}
}

// CreateGuild collects the guild details. Whatever was typed survives a
// timeout and comes back the next time the form opens.
type CreateGuild struct {
	flow  *Flow
	draft domain.Payload
}

func (c *CreateGuild) Name() string { return "CreateGuild" }

func (c *CreateGuild) Timeout() time.Duration { return createTimeout }

func (c *CreateGuild) CurrentState() domain.Payload { return c.draft.Clone() }

func (c *CreateGuild) Build(ctx context.Context, s *application.Session) (*domain.Form, error) {
	if c.draft == nil {
		draft, err := c.initialDraft(ctx, s)
		if err != nil {
			return nil, err
		}
		c.draft = draft
	}

	colorIndex := 0
	for i, color := range Colors {
		if color == c.draft.String("color") {
			colorIndex = i
		}
	}
	public, _ := c.draft["public"].(bool)

	return &domain.Form{
		Kind:  domain.FormKindCustom,
		Title: "Create a guild",
		Components: []domain.Component{
			{ID: "name", Kind: domain.ComponentInput, Label: "Name", Placeholder: "guild name", Default: c.draft.String("name")},
			{ID: "public", Kind: domain.ComponentToggle, Label: "Public", Default: public},
			{ID: "color", Kind: domain.ComponentDropdown, Label: "Color", Options: Colors, Default: colorIndex},
		},
	}, nil
}

// initialDraft prefers the values of an interrupted attempt, then the
// step already saved by this workflow.
func (c *CreateGuild) initialDraft(ctx context.Context, s *application.Session) (domain.Payload, error) {
	recovered, ok, err := s.Recovery(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := s.ClearRecovery(ctx); err != nil {
			return nil, err
		}
		return recovered, nil
	}

	steps, err := s.RestoreWorkflow(ctx)
	if err != nil {
		return nil, err
	}
	if saved, ok := steps[detailsStep]; ok {
		return saved, nil
	}
	return domain.Payload{}, nil
}

func (c *CreateGuild) OnResponse(ctx context.Context, s *application.Session, resp domain.Response) application.Outcome {
	if resp.Closed {
		return application.Back(nil)
	}

	name := strings.TrimSpace(resp.Text("name"))
	public, _ := resp.Value("public").(bool)
	color := Colors[0]
	if idx, ok := index(resp.Value("color")); ok && idx >= 0 && idx < len(Colors) {
		color = Colors[idx]
	}
	c.draft = domain.Payload{"name": name, "public": public, "color": color}

	var problems []string
	switch {
	case name == "":
		problems = append(problems, "name is required")
	case len(name) > maxNameLength:
		problems = append(problems, fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	if _, taken := c.flow.registry.Get(name); name != "" && taken {
		problems = append(problems, fmt.Sprintf("a guild named %s already exists", name))
	}
	if len(problems) > 0 {
		return application.Invalid(problems...)
	}

	if err := s.SaveStep(ctx, detailsStep, c.draft); err != nil {
		return application.Fail(application.FailRetry, err)
	}
	return application.Open(&ConfirmGuild{flow: c.flow})
}

func (c *CreateGuild) Resume(ctx context.Context, s *application.Session, _ any) {
	if steps, err := s.RestoreWorkflow(ctx); err == nil {
		if saved, ok := steps[detailsStep]; ok {
			c.draft = saved
		}
	}
}

// ConfirmGuild shows the saved details and commits them.
type ConfirmGuild struct {
	flow *Flow
}

func (c *ConfirmGuild) Name() string { return "ConfirmGuild" }

func (c *ConfirmGuild) Build(ctx context.Context, s *application.Session) (*domain.Form, error) {
	details, err := c.details(ctx, s)
	if err != nil {
		return nil, err
	}

	visibility := "private"
	if public, _ := details["public"].(bool); public {
		visibility = "public"
	}

	return &domain.Form{
		Kind:    domain.FormKindModal,
		Title:   "Create " + details.String("name") + "?",
		Content: fmt.Sprintf("A %s %s guild.", visibility, details.String("color")),
		Buttons: []domain.Button{
			{ID: buttonConfirm, Label: "Create"},
			{ID: buttonEdit, Label: "Edit"},
			{ID: buttonCancel, Label: "Cancel"},
		},
	}, nil
}

func (c *ConfirmGuild) details(ctx context.Context, s *application.Session) (domain.Payload, error) {
	steps, err := s.RestoreWorkflow(ctx)
	if err != nil {
		return nil, err
	}
	details, ok := steps[detailsStep]
	if !ok {
		return nil, errors.New("guild details missing from workflow")
	}
	return details, nil
}

func (c *ConfirmGuild) OnResponse(ctx context.Context, s *application.Session, resp domain.Response) application.Outcome {
	switch {
	case resp.Closed, resp.Button == buttonEdit:
		return application.Back(nil)
	case resp.Button == buttonCancel:
		if err := s.CancelWorkflow(ctx); err != nil {
			return application.Fail(application.FailAbort, err)
		}
		return application.Stay()
	case resp.Button != buttonConfirm:
		return application.Invalid(fmt.Sprintf("unknown option %q", resp.Button))
	}

	details, err := c.details(ctx, s)
	if err != nil {
		return application.Fail(application.FailAbort, err)
	}
	public, _ := details["public"].(bool)
	guild := Guild{
		Name:      details.String("name"),
		Color:     details.String("color"),
		Public:    public,
		Owner:     string(s.ID()),
		CreatedAt: c.flow.clock.Now(),
	}
	if err := c.flow.registry.Add(guild); err != nil {
		return application.Fail(application.FailAbort, err)
	}

	if err := s.ClearWorkflow(ctx); err != nil {
		return application.Fail(application.FailAbort, err)
	}
	if err := s.Post(ctx, menuMailbox, domain.Payload{"created": guild.Name}); err != nil {
		return application.Fail(application.FailAbort, err)
	}
	return application.Close()
}

// GuildList is shared by every session looking at the same registry
// version and built in the background.
type GuildList struct {
	flow *Flow
}

func (g *GuildList) Name() string { return "GuildList" }

func (g *GuildList) BuildAsync() bool { return true }

func (g *GuildList) Fingerprint(*application.Session) string {
	return domain.NewFingerprint(g.Name()).With(g.flow.registry.Version()).Locale(g.flow.locale).String()
}

func (g *GuildList) Build(ctx context.Context, _ *application.Session) (*domain.Form, error) {
	if g.flow.ListDelay > 0 {
		select {
		case <-time.After(g.flow.ListDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	guilds := g.flow.registry.List()
	form := &domain.Form{
		Kind:    domain.FormKindSimple,
		Title:   "Browse guilds",
		Content: fmt.Sprintf("%d guilds", len(guilds)),
	}
	for _, guild := range guilds {
		form.Buttons = append(form.Buttons, domain.Button{ID: guildButtonPref + guild.Name, Label: guild.Name})
	}
	form.Buttons = append(form.Buttons, domain.Button{ID: buttonBack, Label: "Back"})
	return form, nil
}

func (g *GuildList) OnResponse(_ context.Context, _ *application.Session, resp domain.Response) application.Outcome {
	if resp.Closed || resp.Button == buttonBack {
		return application.Back(nil)
	}
	name, ok := strings.CutPrefix(resp.Button, guildButtonPref)
	if !ok {
		return application.Invalid(fmt.Sprintf("unknown option %q", resp.Button))
	}
	if _, found := g.flow.registry.Get(name); !found {
		return application.Fail(application.FailRetry, fmt.Errorf("guild %s no longer exists", name))
	}
	return application.Open(&GuildInfo{flow: g.flow, guild: name})
}

func (g *GuildList) OnFailure(ctx context.Context, s *application.Session, err error) {
	// The list frame is already gone; nothing else to undo.
	_ = s.SaveFormState(ctx, "GuildList:error", domain.Payload{"error": err.Error()})
}

// GuildInfo shows one guild. A client that cannot show the modal gets a
// plain message instead.
type GuildInfo struct {
	flow  *Flow
	guild string
}

func (g *GuildInfo) Name() string { return "GuildInfo" }

func (g *GuildInfo) Fingerprint(*application.Session) string {
	return domain.NewFingerprint(g.Name()).With(g.guild, g.flow.registry.Version()).Locale(g.flow.locale).String()
}

func (g *GuildInfo) Build(context.Context, *application.Session) (*domain.Form, error) {
	guild, ok := g.flow.registry.Get(g.guild)
	if !ok {
		return nil, fmt.Errorf("guild %s not found", g.guild)
	}

	visibility := "Private"
	if guild.Public {
		visibility = "Public"
	}
	return &domain.Form{
		Kind:    domain.FormKindModal,
		Title:   guild.Name,
		Content: fmt.Sprintf("%s guild · color %s · owner %s", visibility, guild.Color, ownerOrUnknown(guild.Owner)),
		Buttons: []domain.Button{
			{ID: "join", Label: "Join"},
			{ID: buttonBack, Label: "Back"},
		},
	}, nil
}

func (g *GuildInfo) OnResponse(_ context.Context, _ *application.Session, resp domain.Response) application.Outcome {
	if resp.Button == "join" {
		return application.Back(domain.Payload{"joined": g.guild})
	}
	return application.Back(nil)
}

func (g *GuildInfo) Fallback(context.Context, *application.Session, error) application.Screen {
	return &Message{Title: g.guild, Text: "Guild details are unavailable on this client."}
}

// Message is a plain one-button screen.
type Message struct {
	Title string
	Text  string
}

func (m *Message) Name() string { return "Message" }

func (m *Message) Build(context.Context, *application.Session) (*domain.Form, error) {
	return &domain.Form{
		Kind:    domain.FormKindSimple,
		Title:   m.Title,
		Content: m.Text,
		Buttons: []domain.Button{{ID: buttonBack, Label: "OK"}},
	}, nil
}

func (m *Message) OnResponse(context.Context, *application.Session, domain.Response) application.Outcome {
	return application.Back(nil)
}

func ownerOrUnknown(owner string) string {
	if owner == "" {
		return "unknown"
	}
	return owner
}

func index(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
