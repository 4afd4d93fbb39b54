package notifications

import (
	"context"
	"fmt"

	"github.com/rajyaabhishek/LawX-sub001/internal/apperrors"
	"github.com/rajyaabhishek/LawX-sub001/internal/models"
)

// Case is the part of a case posting the producers need.
type Case struct {
	ID       string `json:"case_id"`
	Title    string `json:"case_title"`
	PosterID string `json:"poster_id"`
}

// Actor is the user whose action triggered a notification.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a Actor) displayName() string {
	if a.Name != "" {
		return a.Name
	}
	return "Someone"
}

func (c Case) validate() error {
	if c.ID == "" {
		return apperrors.InvalidArg("case id is required")
	}
	if c.PosterID == "" {
		return apperrors.InvalidArg("case poster is required")
	}
	return nil
}

// NotifyNewCase tells every verified lawyer except the poster about a new
// case.
func (s *Service) NotifyNewCase(ctx context.Context, c Case) ([]models.Notification, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	lawyers, err := s.users.VerifiedLawyerIDs(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to load verified lawyers", err)
	}

	recipients := make([]string, 0, len(lawyers))
	for _, id := range lawyers {
		if id != c.PosterID {
			recipients = append(recipients, id)
		}
	}

	return s.CreateBulk(ctx, recipients, CreateInput{
		Type:          models.NotificationNewCase,
		Message:       fmt.Sprintf("New case posted: %s", c.Title),
		RelatedUserID: c.PosterID,
		RelatedCaseID: c.ID,
		Payload:       models.NewCasePayload{CaseID: c.ID, CaseTitle: c.Title, Action: "view_case"},
	})
}

// NotifyCaseApplication tells the case poster that a lawyer applied.
func (s *Service) NotifyCaseApplication(ctx context.Context, c Case, lawyer Actor, applicationID string) (*models.Notification, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if lawyer.ID == "" {
		return nil, apperrors.InvalidArg("lawyer is required")
	}
	if lawyer.ID == c.PosterID {
		return nil, nil
	}

	n, err := s.Create(ctx, CreateInput{
		RecipientID:   c.PosterID,
		Type:          models.NotificationCaseApplication,
		Message:       fmt.Sprintf("%s applied to your case: %s", lawyer.displayName(), c.Title),
		RelatedUserID: lawyer.ID,
		RelatedCaseID: c.ID,
		Payload: models.CaseApplicationPayload{
			CaseID:        c.ID,
			CaseTitle:     c.Title,
			ApplicationID: applicationID,
			Action:        "view_applications",
		},
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// NotifyApplicationDecision tells the lawyer whether the poster accepted
// their application.
func (s *Service) NotifyApplicationDecision(ctx context.Context, c Case, lawyerID, applicationID string, accepted bool) (*models.Notification, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if lawyerID == "" {
		return nil, apperrors.InvalidArg("lawyer is required")
	}
	if lawyerID == c.PosterID {
		return nil, nil
	}

	payload := models.ApplicationDecisionPayload{
		CaseID:        c.ID,
		CaseTitle:     c.Title,
		ApplicationID: applicationID,
		Accepted:      accepted,
		Action:        "view_case",
	}
	message := fmt.Sprintf("Your application for %q was not accepted", c.Title)
	if accepted {
		message = fmt.Sprintf("Congratulations! Your application for %q was accepted", c.Title)
		payload.Action = "contact_client"
	}

	n, err := s.Create(ctx, CreateInput{
		RecipientID:   lawyerID,
		Type:          payload.NotificationType(),
		Message:       message,
		RelatedUserID: c.PosterID,
		RelatedCaseID: c.ID,
		Payload:       payload,
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// NotifyCaseStatusUpdate fans a status change out to the given recipients,
// never to the poster who made the change.
func (s *Service) NotifyCaseStatusUpdate(ctx context.Context, c Case, status string, recipients []string) ([]models.Notification, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if status == "" {
		return nil, apperrors.InvalidArg("status is required")
	}

	filtered := make([]string, 0, len(recipients))
	for _, id := range recipients {
		if id != c.PosterID {
			filtered = append(filtered, id)
		}
	}

	return s.CreateBulk(ctx, filtered, CreateInput{
		Type:          models.NotificationCaseStatusUpdate,
		Message:       fmt.Sprintf("Case %q is now %s", c.Title, status),
		RelatedUserID: c.PosterID,
		RelatedCaseID: c.ID,
		Payload:       models.CaseStatusPayload{CaseID: c.ID, CaseTitle: c.Title, Status: status},
	})
}

func (s *Service) NotifyPostLiked(ctx context.Context, postID, authorID string, liker Actor) (*models.Notification, error) {
	if liker.ID == authorID {
		return nil, nil
	}
	n, err := s.Create(ctx, CreateInput{
		RecipientID:   authorID,
		Type:          models.NotificationLike,
		Message:       fmt.Sprintf("%s liked your post", liker.displayName()),
		RelatedUserID: liker.ID,
		RelatedPostID: postID,
		Payload:       models.LikePayload{PostID: postID},
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Service) NotifyPostCommented(ctx context.Context, postID, authorID, commentID, preview string, commenter Actor) (*models.Notification, error) {
	if commenter.ID == authorID {
		return nil, nil
	}
	if r := []rune(preview); len(r) > 120 {
		preview = string(r[:120])
	}
	n, err := s.Create(ctx, CreateInput{
		RecipientID:   authorID,
		Type:          models.NotificationComment,
		Message:       fmt.Sprintf("%s commented on your post", commenter.displayName()),
		RelatedUserID: commenter.ID,
		RelatedPostID: postID,
		Payload:       models.CommentPayload{PostID: postID, CommentID: commentID, Preview: preview},
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// NotifyConnectionAccepted tells the requester that accepter took the
// connection request.
func (s *Service) NotifyConnectionAccepted(ctx context.Context, requesterID, connectionID string, accepter Actor) (*models.Notification, error) {
	if accepter.ID == requesterID {
		return nil, nil
	}
	n, err := s.Create(ctx, CreateInput{
		RecipientID:   requesterID,
		Type:          models.NotificationConnectionAccepted,
		Message:       fmt.Sprintf("%s accepted your connection request", accepter.displayName()),
		RelatedUserID: accepter.ID,
		Payload:       models.ConnectionAcceptedPayload{ConnectionID: connectionID},
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}
