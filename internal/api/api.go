package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"notification-sync/internal/config"
	"notification-sync/internal/gateway"
	"notification-sync/internal/logging"
	"notification-sync/internal/notifications"
	"notification-sync/internal/settings"
)

// Handler serves the local control surface: device links, sync settings,
// per-app policies and the user-facing close/silence actions.
type Handler struct {
	gateway   *gateway.Gateway
	store     *settings.Store
	presenter notifications.Presenter
	icons     notifications.IconResolver
	logger    *logging.Logger
	config    config.Config

	mu      sync.Mutex
	plugins map[string]*notifications.Plugin
}

func NewHandler(gw *gateway.Gateway, store *settings.Store, presenter notifications.Presenter, icons notifications.IconResolver, logger *logging.Logger, cfg config.Config) *Handler {
	return &Handler{
		gateway:   gw,
		store:     store,
		presenter: presenter,
		icons:     icons,
		logger:    logger,
		config:    cfg,
		plugins:   make(map[string]*notifications.Plugin),
	}
}

func NewRouter(h *Handler, logger *logging.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	r.GET("/link", h.LinkDevice)

	api := r.Group(cfg.API.BasePath)
	{
		api.GET("/devices", h.GetDevices)

		api.GET("/settings", h.GetSettings)
		api.PUT("/settings", h.UpdateSettings)

		api.GET("/applications", h.GetApplications)
		api.PUT("/applications/:name", h.UpdateApplication)

		api.POST("/notifications", h.PublishNotification)
		api.POST("/devices/:id/notifications/:nid/close", h.CloseNotification)
		api.POST("/devices/:id/duplicates/close", h.CloseDuplicate)
		api.POST("/devices/:id/duplicates/silence", h.SilenceDuplicate)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

// LinkDevice upgrades the request to a packet link and runs a sync plugin
// for the peer until the connection drops.
func (h *Handler) LinkDevice(c *gin.Context) {
	link, err := h.gateway.Upgrade(c.Writer, c.Request)
	if err != nil {
		h.logger.Errorf("Link device failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.AttachLink(link)
}

// AttachLink starts a sync plugin on an established link. Used for both
// accepted and dialed connections.
func (h *Handler) AttachLink(link *gateway.Link) {
	plugin := notifications.New(notifications.Config{
		PeerDeviceID:    link.DeviceID(),
		PeerHost:        link.RemoteHost(),
		TransferTimeout: h.config.Transfer.Timeout,
	}, h.store, link, h.presenter, h.icons, h.logger)

	h.mu.Lock()
	if old, ok := h.plugins[link.DeviceID()]; ok {
		old.Stop()
	}
	h.plugins[link.DeviceID()] = plugin
	h.mu.Unlock()

	go func() {
		h.gateway.ReadLoop(link, plugin)
		h.mu.Lock()
		if h.plugins[link.DeviceID()] == plugin {
			delete(h.plugins, link.DeviceID())
		}
		h.mu.Unlock()
		plugin.Stop()
	}()
}

func (h *Handler) plugin(deviceID string) (*notifications.Plugin, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.plugins[deviceID]
	return p, ok
}

func (h *Handler) GetDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"devices": h.gateway.Devices()})
}

type settingsBody struct {
	ReceiveNotifications *bool `json:"receiveNotifications"`
	SendNotifications    *bool `json:"sendNotifications"`
	SendIcons            *bool `json:"sendIcons"`
}

func (h *Handler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"receiveNotifications": h.store.Bool(settings.KeyReceiveNotifications, true),
		"sendNotifications":    h.store.Bool(settings.KeySendNotifications, true),
		"sendIcons":            h.store.Bool(settings.KeySendIcons, true),
	})
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var body settingsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.Errorf("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pairs := map[string]*bool{
		settings.KeyReceiveNotifications: body.ReceiveNotifications,
		settings.KeySendNotifications:    body.SendNotifications,
		settings.KeySendIcons:            body.SendIcons,
	}
	for key, v := range pairs {
		if v == nil {
			continue
		}
		if err := h.store.SetBool(key, *v); err != nil {
			h.logger.Errorf("Update setting %s failed: %v", key, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	h.GetSettings(c)
}

func (h *Handler) GetApplications(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Applications())
}

func (h *Handler) UpdateApplication(c *gin.Context) {
	name := c.Param("name")

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.Errorf("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var entry settings.AppPolicy
	known := false
	err := h.store.UpdateApplications(func(apps map[string]settings.AppPolicy) bool {
		e, ok := apps[name]
		if !ok {
			return false
		}
		e.Enabled = body.Enabled
		apps[name] = e
		entry, known = e, true
		return true
	})
	if err != nil {
		h.logger.Errorf("Update application %s failed: %v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "Application not known"})
		return
	}
	h.logger.Infof("Application %s enabled=%v", name, body.Enabled)
	c.JSON(http.StatusOK, gin.H{name: entry})
}

// PublishNotification forwards a local notification event to every linked
// peer, mirroring the desktop notification emission API.
func (h *Handler) PublishNotification(c *gin.Context) {
	var body struct {
		AppName    string `json:"appName" binding:"required"`
		ReplacesID uint32 `json:"replacesId"`
		IconName   string `json:"iconName"`
		Summary    string `json:"summary"`
		Body       string `json:"body"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.Errorf("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	plugins := make([]*notifications.Plugin, 0, len(h.plugins))
	for _, p := range h.plugins {
		plugins = append(plugins, p)
	}
	h.mu.Unlock()

	for _, p := range plugins {
		if err := p.Notify(body.AppName, body.ReplacesID, body.IconName, body.Summary, body.Body, nil, nil, -1); err != nil {
			h.logger.Errorf("Forward notification from %s failed: %v", body.AppName, err)
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"forwarded": len(plugins)})
}

func (h *Handler) CloseNotification(c *gin.Context) {
	plugin, ok := h.plugin(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not linked"})
		return
	}
	if err := plugin.Close(c.Param("nid")); err != nil {
		h.logger.Errorf("Close notification failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cancel sent"})
}

type duplicateBody struct {
	Match string `json:"match" binding:"required"`
}

func (h *Handler) CloseDuplicate(c *gin.Context) {
	plugin, ok := h.plugin(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not linked"})
		return
	}
	var body duplicateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plugin.CloseDuplicate(body.Match)
	c.JSON(http.StatusOK, gin.H{"message": "Close requested"})
}

func (h *Handler) SilenceDuplicate(c *gin.Context) {
	plugin, ok := h.plugin(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not linked"})
		return
	}
	var body duplicateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plugin.SilenceDuplicate(body.Match)
	c.JSON(http.StatusOK, gin.H{"message": "Silence requested"})
}
