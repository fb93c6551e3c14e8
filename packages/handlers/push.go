package handlers

import (
	"context"
	"strings"

	"devflow-autopilot/packages/service"
	"devflow-autopilot/packages/state"
	"devflow-autopilot/types"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/github"
	"github.com/swinton/go-probot/probot"
)

// HandlePush records pushes to the tracked branch and, when enabled, runs
// the SEO pipeline once per new head commit.
func (h *Handlers) HandlePush(ctx *probot.Context) error {
	ev := ctx.Payload.(*github.PushEvent)
	payload, ok := pushPayload(ev)
	if !ok {
		return nil
	}

	tracked := h.cfg.Automation.TrackedBranch
	if tracked == "" {
		tracked = ev.GetRepo().GetDefaultBranch()
	}

	svc := h.serviceFor(ctx)
	return h.processPush(h.eventContext("push", payload.Owner+"/"+payload.Name), svc, payload, tracked)
}

// pushPayload normalizes a push event. Branch deletions and tag pushes are
// skipped.
func pushPayload(ev *github.PushEvent) (types.EventPayload, bool) {
	if ev.GetDeleted() || !strings.HasPrefix(ev.GetRef(), "refs/heads/") || ev.GetAfter() == "" {
		return types.EventPayload{}, false
	}
	owner, name, ok := strings.Cut(ev.GetRepo().GetFullName(), "/")
	if !ok {
		return types.EventPayload{}, false
	}

	payload := types.EventPayload{
		Event:   "push",
		Owner:   owner,
		Name:    name,
		Ref:     ev.GetRef(),
		HeadSHA: ev.GetAfter(),
		Sender:  ev.GetSender().GetLogin(),
	}
	if hc := ev.HeadCommit; hc != nil && hc.Timestamp != nil {
		payload.PushedAt = hc.Timestamp.Time
	}
	return payload, true
}

func (h *Handlers) processPush(ctx context.Context, svc *service.Service, payload types.EventPayload, tracked string) error {
	log := clog.FromContext(ctx).With("ref", payload.Ref, "sha", payload.HeadSHA)
	if branch := strings.TrimPrefix(payload.Ref, "refs/heads/"); tracked != "" && branch != tracked {
		log.Debugf("Ignoring push to untracked branch %s", branch)
		return nil
	}

	// Step 1: Record the push
	st, outcome, err := svc.Tracker().RecordPush(ctx, payload)
	if err != nil {
		log.Errorf("Failed to record push: %v", err)
		return err
	}
	if outcome != state.PushNew {
		log.Infof("Push already handled (%s)", outcome)
		return nil
	}

	// Step 2: Refresh SEO metadata once per head commit
	if !h.cfg.Automation.SEOOnPush || !state.NeedsProcessing(st, types.FlagSEOOptimized) {
		return nil
	}
	id := types.RepositoryIdentity{Owner: payload.Owner, Name: payload.Name}
	res, err := svc.SEO(ctx, service.SEORequest{GitHubURL: id.HTMLURL(), Apply: true})
	if err != nil {
		log.Errorf("Failed to refresh SEO metadata: %v", err)
		return err
	}
	log.Infof("SEO metadata refreshed: %s", res.Message)
	return nil
}
