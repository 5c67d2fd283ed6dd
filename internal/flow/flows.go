// ABOUTME: Built-in dialog flows: onboarding, conference, poll, slide, Q&A
// ABOUTME: Each flow collects validated input and ends in one domain mutation

package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/podium/internal/fault"
	"github.com/2389/podium/internal/poll"
	"github.com/2389/podium/internal/store"
)

// Flow names. Seeded slots use the same keys as step keys.
const (
	FlowOnboarding       = "onboarding"
	FlowCreateConference = "conference-create"
	FlowEditConference   = "conference-edit"
	FlowCreatePoll       = "poll-create"
	FlowEditPoll         = "poll-edit"
	FlowSetSlide         = "slide-set"
	FlowAssignAdmin      = "admin-assign"
	FlowAskQuestion      = "question-ask"
	FlowAnswerQuestion   = "question-answer"
	FlowFind             = "find"
)

func (e *Engine) registerBuiltins() {
	e.register(e.onboardingFlow())
	e.register(e.createConferenceFlow())
	e.register(e.editConferenceFlow())
	e.register(e.createPollFlow())
	e.register(e.editPollFlow())
	e.register(e.setSlideFlow())
	e.register(e.assignAdminFlow())
	e.register(e.askQuestionFlow())
	e.register(e.answerQuestionFlow())
	e.register(e.findFlow())
}

func (e *Engine) onboardingFlow() *Flow {
	return &Flow{
		Name:            FlowOnboarding,
		RetryOnNotFound: true, // mistyped conference code: re-prompt, don't abort
		Steps: []Step{
			{Key: "name", Prompt: "What's your name?", Validate: Text(2, 64)},
			{Key: "interests", Prompt: "Your interests, comma-separated (or - to skip):",
				Optional: true, Validate: CommaList(1, 10)},
			{Key: "offerings", Prompt: "What can you offer others, comma-separated (or - to skip):",
				Optional: true, Validate: CommaList(1, 10)},
			{Key: "looking", Prompt: "What are you looking for, comma-separated (or - to skip):",
				Optional: true, Validate: CommaList(1, 10)},
			{Key: "code", Prompt: "Enter the conference code:", Validate: Text(4, 32)},
		},
		Finish: func(ctx context.Context, account *store.Account, data map[string]string) (string, error) {
			conf, profile, err := e.conferences.Join(ctx, account, data["code"], data["name"])
			if err != nil {
				return "", err
			}

			profile.Name = data["name"]
			profile.Interests = SplitList(data["interests"])
			profile.Offerings = SplitList(data["offerings"])
			profile.LookingFor = SplitList(data["looking"])
			profile.Onboarded = true
			if err := e.store.UpdateProfile(ctx, profile); err != nil {
				return "", fault.Storagef(err, "saving profile")
			}
			return fmt.Sprintf("Welcome to %s, %s! You're all set.", conf.Title, profile.Name), nil
		},
	}
}

func (e *Engine) createConferenceFlow() *Flow {
	return &Flow{
		Name: FlowCreateConference,
		Steps: []Step{
			{Key: "title", Prompt: "Conference title:", Validate: Text(3, 100)},
			{Key: "description", Prompt: "Conference description (or - to skip):",
				Optional: true, Validate: Text(1, 1000)},
		},
		Finish: func(ctx context.Context, account *store.Account, data map[string]string) (string, error) {
			conf, err := e.conferences.Create(ctx, account, data["title"], data["description"])
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Conference %q created. Join code: %s", conf.Title, conf.Code), nil
		},
	}
}

func (e *Engine) editConferenceFlow() *Flow {
	return &Flow{
		Name: FlowEditConference,
		Steps: []Step{
			{Key: "title", Prompt: "New title (or - to keep):", Optional: true, Validate: Text(3, 100)},
			{Key: "description", Prompt: "New description (or - to keep):", Optional: true, Validate: Text(1, 1000)},
		},
		Finish: func(ctx context.Context, account *store.Account, data map[string]string) (string, error) {
			conf, err := e.conferences.Update(ctx, account, data["code"], data["title"], data["description"])
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Conference %q updated.", conf.Title), nil
		},
	}
}

func (e *Engine) createPollFlow() *Flow {
	return &Flow{
		Name: FlowCreatePoll,
		Steps: []Step{
			{Key: "question", Prompt: "Poll question:", Validate: Text(3, 200)},
			{Key: "options", Prompt: "Options, comma-separated (at least 2):",
				Validate: CommaList(poll.MinOptions, poll.MaxOptions)},
		},
		Finish: func(ctx context.Context, account *store.Account, data map[string]string) (string, error) {
			conf, err := e.conferences.Get(ctx, data["code"])
			if err != nil {
				return "", err
			}
			p, err := e.polls.Create(ctx, account, conf, data["question"], SplitList(data["options"]))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Poll created with %d options. It is live now.", len(p.Options)), nil
		},
	}
}

func (e *Engine) editPollFlow() *Flow {
	return &Flow{
		Name: FlowEditPoll,
		Steps: []Step{
			{Key: "question", Prompt: "New poll question (or - to keep):", Optional: true, Validate: Text(3, 200)},
			{Key: "options", Prompt: "New option texts, comma-separated, matching the current count (or - to keep):",
				Optional: true, Validate: CommaList(poll.MinOptions, poll.MaxOptions)},
		},
		Finish: func(ctx context.Context, account *store.Account, data map[string]string) (string, error) {
			var texts []string
			if data["options"] != "" {
				texts = SplitList(data["options"])
			}
			p, err := e.polls.Edit(ctx, account, data["poll"], data["question"], texts)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Poll %q updated.", p.Question), nil
		},
	}
}

func (e *Engine) setSlideFlow() *Flow {
	return &Flow{
		Name: FlowSetSlide,
		Steps: []Step{
			{Key: "slide", Prompt: "Send the slide as: URL [title...]", Validate: SlideLine},
		},
		Finish: func(ctx context.Context, account *store.Account, data map[string]string) (string, error) {
			url, title := ParseSlideLine(data["slide"])
			if err := e.conferences.SetSlide(ctx, account, data["code"], url, title); err != nil {
				return "", err
			}
			return "Slide updated for all viewers.", nil
		},
	}
}

func (e *Engine) assignAdminFlow() *Flow {
	return &Flow{
		Name: FlowAssignAdmin,
		Steps: []Step{
			{Key: "target", Prompt: "Numeric id of the user to make admin:", Validate: NumericID},
		},
		Finish: func(ctx context.Context, account *store.Account, data map[string]string) (string, error) {
			if err := e.conferences.AssignAdmin(ctx, account, data["code"], data["target"]); err != nil {
				return "", err
			}
			return "Admin assigned.", nil
		},
	}
}

func (e *Engine) askQuestionFlow() *Flow {
	return &Flow{
		Name: FlowAskQuestion,
		Steps: []Step{
			{Key: "text", Prompt: "Type your question (at least 10 characters):", Validate: Text(10, 1000)},
		},
		Finish: func(ctx context.Context, account *store.Account, data map[string]string) (string, error) {
			conf, err := e.conferences.Get(ctx, data["code"])
			if err != nil {
				return "", err
			}

			var author *string
			profile, err := e.store.GetProfileByAccount(ctx, account.ID, conf.ID)
			if err == nil {
				author = &profile.ID
			} else if !errors.Is(err, store.ErrNotFound) {
				return "", fault.Storagef(err, "loading profile")
			}

			var target *string
			if t := data["target"]; t != "" {
				target = &t
			}

			if _, err := e.moderation.Submit(ctx, conf, author, target, data["text"]); err != nil {
				return "", err
			}
			return "Question submitted. It will appear once a moderator approves it.", nil
		},
	}
}

func (e *Engine) answerQuestionFlow() *Flow {
	return &Flow{
		Name: FlowAnswerQuestion,
		Steps: []Step{
			{Key: "answer", Prompt: "Type your answer:", Validate: Text(1, 2000)},
		},
		Finish: func(ctx context.Context, account *store.Account, data map[string]string) (string, error) {
			if _, err := e.moderation.Answer(ctx, account, data["question"], data["answer"]); err != nil {
				return "", err
			}
			return "Answer recorded.", nil
		},
	}
}

func (e *Engine) findFlow() *Flow {
	return &Flow{
		Name: FlowFind,
		Steps: []Step{
			{Key: "query", Prompt: "What are you looking for? (free text, or - for everyone)",
				Optional: true, Validate: Text(1, 100)},
		},
		Finish: func(ctx context.Context, account *store.Account, data map[string]string) (string, error) {
			conf, err := e.conferences.Get(ctx, data["code"])
			if err != nil {
				return "", err
			}
			profiles, err := e.search.Find(ctx, conf.ID, data["role"], data["query"])
			if err != nil {
				return "", err
			}
			if len(profiles) == 0 {
				return "Nobody matched. Try a broader query.", nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Found %d participants:\n", len(profiles))
			for _, p := range profiles {
				fmt.Fprintf(&b, "• %s", p.Name)
				if len(p.Offerings) > 0 {
					fmt.Fprintf(&b, " (offers: %s)", strings.Join(p.Offerings, ", "))
				}
				b.WriteString("\n")
			}
			return b.String(), nil
		},
	}
}
