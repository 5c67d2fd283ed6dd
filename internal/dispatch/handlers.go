// ABOUTME: Action handlers behind the dispatcher: menus, moderation, polls
// ABOUTME: Each handler is registered once per (namespace, verb)

package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/podium/internal/fault"
	"github.com/2389/podium/internal/flow"
	"github.com/2389/podium/internal/poll"
	"github.com/2389/podium/internal/store"
)

// allSpeakersToken marks "no target speaker" in ask:target parameters.
const allSpeakersToken = "-"

func (d *Dispatcher) registerHandlers() {
	// menu
	d.register(NSMenu, "main", 0, -1, d.handleMainMenu)
	d.register(NSMenu, "join", 0, -1, d.handleJoin)

	// conf
	d.register(NSConf, "create", 0, -1, d.handleConfCreate)
	d.register(NSConf, "open", 1, 0, d.handleConfOpen)

	// admin (conference code is the greedy parameter)
	d.register(NSAdmin, "conf", 1, 0, d.handleAdminMenu)
	d.register(NSAdmin, "edit", 1, 0, d.handleAdminEdit)
	d.register(NSAdmin, "start", 1, 0, d.handleAdminStart)
	d.register(NSAdmin, "stop", 1, 0, d.handleAdminStop)
	d.register(NSAdmin, "end", 1, 0, d.handleAdminEnd)
	d.register(NSAdmin, "delete", 1, 0, d.handleAdminDelete)
	d.register(NSAdmin, "slide", 1, 0, d.handleAdminSlide)
	d.register(NSAdmin, "clearslide", 1, 0, d.handleAdminClearSlide)
	d.register(NSAdmin, "assign", 1, 0, d.handleAdminAssign)
	// the target external id may itself contain colons (@user:host)
	d.register(NSAdmin, "revoke", 2, 1, d.handleAdminRevoke)

	// ask
	d.register(NSAsk, "question", 1, 0, d.handleAskQuestion)
	d.register(NSAsk, "target", 2, 0, d.handleAskTarget)

	// moderate
	d.register(NSModerate, "list", 1, 0, d.handleModerateList)
	d.register(NSModerate, "approve", 2, 0, d.handleModerateApprove)
	d.register(NSModerate, "reject", 2, 0, d.handleModerateReject)

	// speaker
	d.register(NSSpeaker, "questions", 1, 0, d.handleSpeakerQuestions)
	d.register(NSSpeaker, "answer", 2, 0, d.handleSpeakerAnswer)

	// polls / vote / poll
	d.register(NSPolls, "list", 1, 0, d.handlePollsList)
	d.register(NSVote, "poll", 2, -1, d.handleVote)
	d.register(NSPoll, "manage", 1, 0, d.handlePollManage)
	d.register(NSPoll, "create", 1, 0, d.handlePollCreate)
	d.register(NSPoll, "edit", 1, -1, d.handlePollEdit)
	d.register(NSPoll, "toggle", 1, -1, d.handlePollToggle)
	d.register(NSPoll, "delete", 1, -1, d.handlePollDelete)

	// find / participants
	d.register(NSFind, "menu", 1, 0, d.handleFindMenu)
	d.register(NSFind, "role", 2, 0, d.handleFindRole)
	d.register(NSParticipants, "list", 1, 0, d.handleParticipantsList)
}

func (d *Dispatcher) mainMenu(ctx context.Context, actor *store.Account) *Reply {
	rows := [][]Button{
		{{Label: "Join a conference", Action: NewAction(NSMenu, "join")}},
	}
	if actor.Role == store.RoleAdminCapable || d.resolver.IsMainAdmin(actor) {
		rows = append(rows, []Button{
			{Label: "Create a conference", Action: NewAction(NSConf, "create")},
		})
	}
	return &Reply{
		Text:    fmt.Sprintf("Hi %s! What would you like to do?", actor.DisplayName),
		Buttons: rows,
	}
}

func (d *Dispatcher) handleMainMenu(ctx context.Context, actor *store.Account, _ []string) (*Reply, error) {
	d.engine.Cancel(actor.ExternalID)
	return d.mainMenu(ctx, actor), nil
}

func (d *Dispatcher) handleJoin(ctx context.Context, actor *store.Account, _ []string) (*Reply, error) {
	return d.startFlow(ctx, actor, flow.FlowOnboarding, nil), nil
}

func (d *Dispatcher) handleConfCreate(ctx context.Context, actor *store.Account, _ []string) (*Reply, error) {
	if actor.Role != store.RoleAdminCapable && !d.resolver.IsMainAdmin(actor) {
		return nil, fault.New(fault.Denied, fault.CodeAccessDenied, "not allowed to create conferences")
	}
	return d.startFlow(ctx, actor, flow.FlowCreateConference, nil), nil
}

func (d *Dispatcher) handleConfOpen(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	code := args[0]
	conf, err := d.conferences.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	roles, err := d.resolver.Roles(ctx, actor, conf)
	if err != nil {
		return nil, fault.Storagef(err, "resolving roles")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", conf.Title, conf.Code)
	if conf.Description != "" {
		fmt.Fprintf(&b, "%s\n", conf.Description)
	}
	if conf.Ended {
		b.WriteString("This conference has ended.\n")
	} else if !conf.Active {
		b.WriteString("This conference is paused.\n")
	}
	if conf.SlideURL != nil {
		fmt.Fprintf(&b, "Current slide: %s\n", *conf.SlideURL)
	}

	rows := [][]Button{
		{
			{Label: "Ask a question", Action: NewAction(NSAsk, "question", code)},
			{Label: "Active polls", Action: NewAction(NSPolls, "list", code)},
		},
		{
			{Label: "Find people", Action: NewAction(NSFind, "menu", code)},
			{Label: "Participants", Action: NewAction(NSParticipants, "list", code)},
		},
	}
	if roles.Speaker {
		rows = append(rows, []Button{
			{Label: "Questions for me", Action: NewAction(NSSpeaker, "questions", code)},
		})
	}
	if roles.Moderator() {
		rows = append(rows, []Button{
			{Label: "Moderation", Action: NewAction(NSModerate, "list", code)},
			{Label: "Manage polls", Action: NewAction(NSPoll, "manage", code)},
			{Label: "Admin menu", Action: NewAction(NSAdmin, "conf", code)},
		})
	}
	return &Reply{Text: b.String(), Buttons: rows}, nil
}

func (d *Dispatcher) handleAdminMenu(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	code := args[0]
	conf, err := d.conferences.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	roles, err := d.resolver.Roles(ctx, actor, conf)
	if err != nil {
		return nil, fault.Storagef(err, "resolving roles")
	}
	if !roles.Moderator() {
		return nil, fault.New(fault.Denied, fault.CodeAccessDenied, "not a conference admin")
	}

	toggle := Button{Label: "Stop", Action: NewAction(NSAdmin, "stop", code)}
	if !conf.Active {
		toggle = Button{Label: "Start", Action: NewAction(NSAdmin, "start", code)}
	}
	rows := [][]Button{
		{
			{Label: "Edit title/description", Action: NewAction(NSAdmin, "edit", code)},
			toggle,
		},
		{
			{Label: "Set slide", Action: NewAction(NSAdmin, "slide", code)},
			{Label: "Clear slide", Action: NewAction(NSAdmin, "clearslide", code)},
		},
		{
			{Label: "End conference", Action: NewAction(NSAdmin, "end", code)},
			{Label: "Delete conference", Action: NewAction(NSAdmin, "delete", code)},
		},
	}
	if roles.MainAdmin {
		rows = append(rows, []Button{
			{Label: "Assign admin", Action: NewAction(NSAdmin, "assign", code)},
		})
	}
	return &Reply{
		Text:    fmt.Sprintf("Admin menu for %s (%s)", conf.Title, conf.Code),
		Buttons: rows,
	}, nil
}

func (d *Dispatcher) handleAdminEdit(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	return d.startFlow(ctx, actor, flow.FlowEditConference, map[string]string{"code": args[0]}), nil
}

func (d *Dispatcher) handleAdminStart(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	if err := d.conferences.Start(ctx, actor, args[0]); err != nil {
		return nil, err
	}
	return textReply("Conference is live again."), nil
}

func (d *Dispatcher) handleAdminStop(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	if err := d.conferences.Stop(ctx, actor, args[0]); err != nil {
		return nil, err
	}
	return textReply("Conference paused."), nil
}

func (d *Dispatcher) handleAdminEnd(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	if err := d.conferences.End(ctx, actor, args[0]); err != nil {
		return nil, err
	}
	return textReply("Conference ended. This cannot be undone."), nil
}

func (d *Dispatcher) handleAdminDelete(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	if err := d.conferences.Delete(ctx, actor, args[0]); err != nil {
		return nil, err
	}
	return textReply("Conference deleted, along with its questions, polls and profiles."), nil
}

func (d *Dispatcher) handleAdminSlide(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	return d.startFlow(ctx, actor, flow.FlowSetSlide, map[string]string{"code": args[0]}), nil
}

func (d *Dispatcher) handleAdminClearSlide(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	if err := d.conferences.ClearSlide(ctx, actor, args[0]); err != nil {
		return nil, err
	}
	return textReply("Slide cleared."), nil
}

func (d *Dispatcher) handleAdminAssign(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	return d.startFlow(ctx, actor, flow.FlowAssignAdmin, map[string]string{"code": args[0]}), nil
}

func (d *Dispatcher) handleAdminRevoke(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	code, target := args[0], args[1]
	if err := d.conferences.RevokeAdmin(ctx, actor, code, target); err != nil {
		return nil, err
	}
	return textReply("Admin rights revoked."), nil
}

func (d *Dispatcher) handleAskQuestion(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	code := args[0]
	conf, err := d.conferences.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	profiles, err := d.store.ListProfiles(ctx, conf.ID)
	if err != nil {
		return nil, fault.Storagef(err, "listing profiles")
	}
	var speakers []*store.Profile
	for _, p := range profiles {
		if p.HasRole(store.TagSpeaker) {
			speakers = append(speakers, p)
		}
	}

	if len(speakers) == 0 {
		return d.startFlow(ctx, actor, flow.FlowAskQuestion, map[string]string{"code": code}), nil
	}

	rows := [][]Button{
		{{Label: "All speakers", Action: NewAction(NSAsk, "target", code, allSpeakersToken)}},
	}
	for _, sp := range speakers {
		rows = append(rows, []Button{
			{Label: sp.Name, Action: NewAction(NSAsk, "target", code, sp.ID)},
		})
	}
	return &Reply{Text: "Who is your question for?", Buttons: rows}, nil
}

func (d *Dispatcher) handleAskTarget(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	code, target := args[0], args[1]
	seed := map[string]string{"code": code}
	if target != allSpeakersToken {
		seed["target"] = target
	}
	return d.startFlow(ctx, actor, flow.FlowAskQuestion, seed), nil
}

func (d *Dispatcher) handleModerateList(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	code := args[0]
	conf, err := d.conferences.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	pending, err := d.moderation.ListPending(ctx, actor, conf)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return textReply("No pending questions."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d pending questions:\n", len(pending))
	var rows [][]Button
	for i, q := range pending {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q.Text)
		rows = append(rows, []Button{
			{Label: fmt.Sprintf("Approve #%d", i+1), Action: NewAction(NSModerate, "approve", code, q.ID)},
			{Label: fmt.Sprintf("Reject #%d", i+1), Action: NewAction(NSModerate, "reject", code, q.ID)},
		})
	}
	return &Reply{Text: b.String(), Buttons: rows}, nil
}

func (d *Dispatcher) handleModerateApprove(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	q, err := d.moderation.Approve(ctx, actor, args[1])
	if err != nil {
		return nil, err
	}
	return textReply("Approved: %q is now visible to viewers.", q.Text), nil
}

func (d *Dispatcher) handleModerateReject(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	q, err := d.moderation.Reject(ctx, actor, args[1])
	if err != nil {
		return nil, err
	}
	return textReply("Rejected: %q.", q.Text), nil
}

func (d *Dispatcher) handleSpeakerQuestions(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	code := args[0]
	conf, err := d.conferences.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	questions, err := d.moderation.ListForSpeaker(ctx, actor, conf)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return textReply("No open questions for you right now."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d questions waiting for your answer:\n", len(questions))
	var rows [][]Button
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q.Text)
		rows = append(rows, []Button{
			{Label: fmt.Sprintf("Answer #%d", i+1), Action: NewAction(NSSpeaker, "answer", code, q.ID)},
		})
	}
	return &Reply{Text: b.String(), Buttons: rows}, nil
}

func (d *Dispatcher) handleSpeakerAnswer(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	return d.startFlow(ctx, actor, flow.FlowAnswerQuestion, map[string]string{"question": args[1]}), nil
}

func (d *Dispatcher) handlePollsList(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	conf, err := d.conferences.Get(ctx, args[0])
	if err != nil {
		return nil, err
	}
	polls, err := d.polls.ListActive(ctx, conf.ID)
	if err != nil {
		return nil, err
	}
	if len(polls) == 0 {
		return textReply("No active polls right now."), nil
	}

	var b strings.Builder
	var rows [][]Button
	for _, p := range polls {
		fmt.Fprintf(&b, "%s\n", p.Question)
		if voted := p.VoterOption(actor.ID); voted >= 0 {
			for _, t := range poll.TallyOf(p) {
				marker := " "
				if t.OptionID == voted {
					marker = "*"
				}
				fmt.Fprintf(&b, " %s %s: %d\n", marker, t.Text, t.Votes)
			}
			continue
		}
		var row []Button
		for _, opt := range p.Options {
			row = append(row, Button{
				Label:  opt.Text,
				Action: NewAction(NSVote, "poll", p.ID, fmt.Sprintf("%d", opt.ID)),
			})
		}
		rows = append(rows, row)
	}
	return &Reply{Text: b.String(), Buttons: rows}, nil
}

func (d *Dispatcher) handleVote(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	pollID := args[0]
	var optionID int
	if _, err := fmt.Sscanf(args[1], "%d", &optionID); err != nil {
		return nil, fault.Validationf("option id must be a number")
	}

	p, err := d.polls.Vote(ctx, actor, pollID, optionID)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Vote counted! %s\n", p.Question)
	for _, t := range poll.TallyOf(p) {
		fmt.Fprintf(&b, "  %s: %d\n", t.Text, t.Votes)
	}
	return textReply("%s", b.String()), nil
}

func (d *Dispatcher) handlePollManage(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	code := args[0]
	conf, err := d.conferences.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	polls, err := d.polls.ListAll(ctx, actor, conf)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	rows := [][]Button{
		{{Label: "New poll", Action: NewAction(NSPoll, "create", code)}},
	}
	if len(polls) == 0 {
		b.WriteString("No polls yet.\n")
	}
	for i, p := range polls {
		state := "closed"
		if p.Active {
			state = "live"
		}
		total := 0
		for _, t := range poll.TallyOf(p) {
			total += t.Votes
		}
		fmt.Fprintf(&b, "%d. [%s] %s (%d votes)\n", i+1, state, p.Question, total)

		toggleLabel := fmt.Sprintf("Close #%d", i+1)
		if !p.Active {
			toggleLabel = fmt.Sprintf("Reopen #%d", i+1)
		}
		rows = append(rows, []Button{
			{Label: toggleLabel, Action: NewAction(NSPoll, "toggle", p.ID)},
			{Label: fmt.Sprintf("Edit #%d", i+1), Action: NewAction(NSPoll, "edit", p.ID)},
			{Label: fmt.Sprintf("Delete #%d", i+1), Action: NewAction(NSPoll, "delete", p.ID)},
		})
	}
	return &Reply{Text: b.String(), Buttons: rows}, nil
}

func (d *Dispatcher) handlePollCreate(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	return d.startFlow(ctx, actor, flow.FlowCreatePoll, map[string]string{"code": args[0]}), nil
}

func (d *Dispatcher) handlePollEdit(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	return d.startFlow(ctx, actor, flow.FlowEditPoll, map[string]string{"poll": args[0]}), nil
}

func (d *Dispatcher) handlePollToggle(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	p, err := d.polls.Get(ctx, args[0])
	if err != nil {
		return nil, err
	}
	if p.Active {
		if err := d.polls.Deactivate(ctx, actor, p.ID); err != nil {
			return nil, err
		}
		return textReply("Poll closed."), nil
	}
	if err := d.polls.Activate(ctx, actor, p.ID); err != nil {
		return nil, err
	}
	return textReply("Poll reopened."), nil
}

func (d *Dispatcher) handlePollDelete(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	if err := d.polls.Delete(ctx, actor, args[0]); err != nil {
		return nil, err
	}
	return textReply("Poll deleted."), nil
}

func (d *Dispatcher) handleFindMenu(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	code := args[0]
	if _, err := d.conferences.Get(ctx, code); err != nil {
		return nil, err
	}
	rows := [][]Button{
		{
			{Label: "Speakers", Action: NewAction(NSFind, "role", code, store.TagSpeaker)},
			{Label: "Investors", Action: NewAction(NSFind, "role", code, store.TagInvestor)},
		},
		{
			{Label: "Participants", Action: NewAction(NSFind, "role", code, store.TagParticipant)},
			{Label: "Anyone", Action: NewAction(NSFind, "role", code, allSpeakersToken)},
		},
	}
	return &Reply{Text: "Who are you looking for?", Buttons: rows}, nil
}

func (d *Dispatcher) handleFindRole(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	code, role := args[0], args[1]
	seed := map[string]string{"code": code}
	if role != allSpeakersToken {
		seed["role"] = role
	}
	return d.startFlow(ctx, actor, flow.FlowFind, seed), nil
}

func (d *Dispatcher) handleParticipantsList(ctx context.Context, actor *store.Account, args []string) (*Reply, error) {
	conf, err := d.conferences.Get(ctx, args[0])
	if err != nil {
		return nil, err
	}
	profiles, err := d.store.ListProfiles(ctx, conf.ID)
	if err != nil {
		return nil, fault.Storagef(err, "listing profiles")
	}
	if len(profiles) == 0 {
		return textReply("Nobody has joined yet."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d participants:\n", len(profiles))
	for _, p := range profiles {
		tags := ""
		if len(p.Roles) > 0 {
			tags = " (" + strings.Join(p.Roles, ", ") + ")"
		}
		fmt.Fprintf(&b, "• %s%s\n", p.Name, tags)
	}
	return textReply("%s", b.String()), nil
}
