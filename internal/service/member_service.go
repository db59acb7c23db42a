package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"parish/internal/domain"
	"parish/internal/models"

	"github.com/rs/zerolog"
)

type MemberService struct {
	repo   domain.MemberRepository
	logger *zerolog.Logger
}

func NewMemberService(repo domain.MemberRepository, logger *zerolog.Logger) *MemberService {
	return &MemberService{repo: repo, logger: logger}
}

func (s *MemberService) Create(ctx context.Context, m *models.Member) error {
	m.FirstName = strings.TrimSpace(m.FirstName)
	m.LastName = strings.TrimSpace(m.LastName)
	m.Email = strings.TrimSpace(m.Email)

	if m.FirstName == "" && m.LastName == "" {
		return fmt.Errorf("member name is required: %w", ErrValidation)
	}
	if m.Email != "" {
		if _, err := mail.ParseAddress(m.Email); err != nil {
			return fmt.Errorf("invalid email %q: %w", m.Email, ErrValidation)
		}
	}
	if m.Status == "" {
		m.Status = models.MemberActive
	}

	if err := s.repo.CreateMember(ctx, m); err != nil {
		return err
	}
	s.logger.Info().Int64("member_id", m.ID).Msg("member created")
	return nil
}

func (s *MemberService) Get(ctx context.Context, id int64) (*models.Member, error) {
	return s.repo.GetMember(ctx, id)
}

func (s *MemberService) List(ctx context.Context) ([]models.Member, error) {
	return s.repo.ListMembers(ctx)
}
