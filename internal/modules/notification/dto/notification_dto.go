package dto

type NotificationFilter struct {
	Page  int `form:"page,default=1" binding:"min=1"`
	Limit int `form:"limit,default=20" binding:"min=1,max=100"`
}

type CreateNotificationRequest struct {
	UserID  string  `json:"user_id" binding:"required,uuid"`
	Title   string  `json:"title" binding:"required,max=255"`
	Message string  `json:"message" binding:"required,max=3000"`
	Type    string  `json:"type" binding:"required,oneof=sos_alert activity_reminder chat_message system"`
	Link    *string `json:"link" binding:"omitempty,max=2000"`
}
