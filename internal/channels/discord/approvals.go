package discord

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/tinyclaw/internal/approval"
	"github.com/nextlevelbuilder/tinyclaw/internal/events"
)

// pollApprovals prompts the operator for every pending approval request
// that has not been surfaced yet.
func (a *Adapter) pollApprovals() {
	reqs, err := approval.ListPending(a.paths)
	if err != nil {
		slog.Debug("approval poll failed", "error", err)
		return
	}
	for i := range reqs {
		req := &reqs[i]
		if req.Notified {
			continue
		}
		a.promptApproval(req)
	}
}

// promptApproval posts the approval question with decision buttons. The
// prompt goes to the conversation that triggered the tool call, falling
// back to a DM with the configured admin.
func (a *Adapter) promptApproval(req *approval.PendingRequest) {
	target := a.approvalTarget(req)
	if target == "" {
		slog.Warn("no destination for approval prompt", "request_id", req.RequestID)
		return
	}

	content := fmt.Sprintf(
		"🔐 **Approval required**\nAgent: `%s`\nTool: `%s`\nInput: %s",
		req.AgentID, req.ToolPattern, codeBlock(req.ToolInputSummary))

	_, err := a.session.ChannelMessageSendComplex(target, &discordgo.MessageSend{
		Content:    content,
		Components: approvalComponents(req.RequestID),
	})
	if err != nil {
		slog.Warn("approval prompt send failed", "request_id", req.RequestID, "error", err)
		return
	}
	if err := approval.MarkNotified(a.paths, req); err != nil {
		slog.Warn("approval notified flag write failed", "request_id", req.RequestID, "error", err)
	}
}

// approvalTarget picks where the prompt goes: the thread belonging to the
// triggering message (created first when it doesn't exist yet), otherwise
// a DM to the admin user.
func (a *Adapter) approvalTarget(req *approval.PendingRequest) string {
	if req.MessageID != "" {
		if pend, ok := a.pending.Get(req.MessageID); ok {
			return a.replyTarget(req.MessageID, req.AgentID, pend)
		}
	}
	admin := a.settings.Approvals.AdminUserID
	if admin == "" {
		return ""
	}
	ch, err := a.session.UserChannelCreate(admin)
	if err != nil {
		slog.Warn("admin DM channel create failed", "admin", admin, "error", err)
		return ""
	}
	return ch.ID
}

// handleInteraction dispatches button presses: cancel requests and
// approval decisions.
func (a *Adapter) handleInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	customID := i.MessageComponentData().CustomID

	switch {
	case strings.HasPrefix(customID, "cancel:"):
		a.handleCancelButton(i, strings.TrimPrefix(customID, "cancel:"))
	case strings.HasPrefix(customID, "approve:"):
		a.handleApprovalButton(i, strings.TrimPrefix(customID, "approve:"))
	}
}

func (a *Adapter) handleCancelButton(i *discordgo.InteractionCreate, messageID string) {
	if err := a.queue.PublishCancel(messageID); err != nil {
		slog.Warn("cancel publish failed", "message_id", messageID, "error", err)
	}
	a.finishInteraction(i, i.Message.Content+"\n\n⏹️ Cancelling...")
}

func (a *Adapter) handleApprovalButton(i *discordgo.InteractionCreate, rest string) {
	decision, requestID, ok := strings.Cut(rest, ":")
	if !ok {
		return
	}

	if err := approval.WriteDecision(a.paths, requestID, &approval.DecisionFile{Decision: decision}); err != nil {
		slog.Warn("decision write failed", "request_id", requestID, "error", err)
		a.finishInteraction(i, i.Message.Content+"\n\n⚠️ Failed to record decision, try again.")
		return
	}

	a.sink.Emit(events.Record{
		Kind:   events.KindApprovalDecision,
		Detail: fmt.Sprintf("%s:%s by %s", requestID, decision, interactionUser(i)),
	})
	a.finishInteraction(i, i.Message.Content+"\n\n"+decisionOutcome(decision, interactionUser(i)))
}

// finishInteraction replaces the prompt's content and strips its buttons.
func (a *Adapter) finishInteraction(i *discordgo.InteractionCreate, content string) {
	empty := []discordgo.MessageComponent{}
	err := a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: empty,
		},
	})
	if err != nil {
		slog.Debug("interaction respond failed", "error", err)
	}
}

func decisionOutcome(decision, user string) string {
	switch decision {
	case approval.DecisionAllow:
		return "✅ Allowed once by " + user
	case approval.DecisionAlwaysAllow:
		return "✅ Always allowed for this agent by " + user
	case approval.DecisionAlwaysAllowAll:
		return "✅ Always allowed globally by " + user
	case approval.DecisionDeny:
		return "❌ Denied by " + user
	default:
		return "Recorded: " + decision
	}
}

func interactionUser(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.Username
	}
	if i.User != nil {
		return i.User.Username
	}
	return "unknown"
}

func codeBlock(s string) string {
	if s == "" {
		return "(none)"
	}
	return "```\n" + s + "\n```"
}

func approvalComponents(requestID string) []discordgo.MessageComponent {
	button := func(label string, style discordgo.ButtonStyle, decision string) discordgo.Button {
		return discordgo.Button{
			Label:    label,
			Style:    style,
			CustomID: fmt.Sprintf("approve:%s:%s", decision, requestID),
		}
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				button("Allow this time", discordgo.PrimaryButton, approval.DecisionAllow),
				button("Always allow", discordgo.SuccessButton, approval.DecisionAlwaysAllow),
				button("Always allow globally", discordgo.SecondaryButton, approval.DecisionAlwaysAllowAll),
				button("Deny", discordgo.DangerButton, approval.DecisionDeny),
			},
		},
	}
}
