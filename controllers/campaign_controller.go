package controller

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"simpleautomate/services"
	"simpleautomate/utils"
)

// CampaignSender delivers a campaign to its pending recipients
type CampaignSender interface {
	DispatchNow(ctx context.Context, campaignID uint) (services.CampaignResult, error)
}

type CampaignController struct {
	DB     *gorm.DB
	Sender CampaignSender
	Logger *logrus.Entry
}

func NewCampaignController(db *gorm.DB, sender CampaignSender) *CampaignController {
	return &CampaignController{
		DB:     db,
		Sender: sender,
		Logger: utils.Component("campaigns"),
	}
}
