package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/smallbiznis/incentiva/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) notificationdomain.Sink {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("notification.service"),
		genID: p.GenID,
	}
}

func (s *Service) Notify(ctx context.Context, tx *gorm.DB, req notificationdomain.CreateNotificationRequest) error {
	if req.BeneficiaryID == 0 {
		return notificationdomain.ErrInvalidBeneficiary
	}
	if strings.TrimSpace(req.Message) == "" {
		return notificationdomain.ErrInvalidMessage
	}

	conn := tx
	if conn == nil {
		conn = s.db
	}

	row := &notificationdomain.Notification{
		ID:            s.genID.Generate(),
		BeneficiaryID: req.BeneficiaryID,
		Kind:          req.Kind,
		Message:       strings.TrimSpace(req.Message),
		Metadata:      datatypes.JSONMap(req.Metadata),
	}
	if err := conn.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}

	s.log.Debug("notification queued",
		zap.String("beneficiary_id", req.BeneficiaryID.String()),
		zap.String("kind", string(req.Kind)),
	)
	return nil
}
