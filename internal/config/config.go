package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ENV_PREFIX = "BOOKING_SYNC"

	URL_APP_NAME                   = "URL_App_Name"
	URL_PATH_PREFIX                = "URL_Path_Prefix"
	URL_BASE_PATH                  = "URL_Base_Path"
	HTTP_SHUTDOWN_TIMEOUT          = "HTTP_Shutdown_Timeout"
	SERVICE_TO_SERVICE_CREDENTIALS = "Service_To_Service_Credentials"
	PROFILE                        = "Enable_Profile"

	WEBSOCKET_URL_TEMPLATE      = "WebSocket_Url_Template"
	WEBSOCKET_HANDSHAKE_TIMEOUT = "WebSocket_Handshake_Timeout"
	RECONNECT_DELAY             = "Reconnect_Delay"
	CONNECT_RETRY_DELAY         = "Connect_Retry_Delay"

	TENANT_ID               = "Tenant_Id"
	CREDENTIAL              = "Credential"
	CREDENTIAL_FILE         = "Credential_File"
	CREDENTIAL_TENANT_CLAIM = "Credential_Tenant_Claim"

	NOTIFICATION_FEED_CAPACITY = "Notification_Feed_Capacity"
	EVENT_DEDUPE_CACHE_SIZE    = "Event_Dedupe_Cache_Size"
	INVALIDATION_EVENT_TYPES   = "Invalidation_Event_Types"
	INVALIDATION_ROLES         = "Invalidation_Roles"

	BOOKING_API_URL_TEMPLATE = "Booking_Api_Url_Template"
	BOOKING_API_TIMEOUT      = "Booking_Api_Timeout"
)

type Config struct {
	UrlAppName                  string
	UrlPathPrefix               string
	UrlBasePath                 string
	HttpShutdownTimeout         time.Duration
	ServiceToServiceCredentials map[string]interface{}
	Profile                     bool

	WebSocketUrlTemplate      string
	WebSocketHandshakeTimeout time.Duration
	ReconnectDelay            time.Duration
	ConnectRetryDelay         time.Duration

	TenantId              string
	Credential            string
	CredentialFile        string
	CredentialTenantClaim string

	NotificationFeedCapacity int
	EventDedupeCacheSize     int
	InvalidationEventTypes   []string
	InvalidationRoles        []string

	BookingApiUrlTemplate string
	BookingApiTimeout     time.Duration
}

func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", URL_PATH_PREFIX, c.UrlPathPrefix)
	fmt.Fprintf(&b, "%s: %s\n", URL_APP_NAME, c.UrlAppName)
	fmt.Fprintf(&b, "%s: %s\n", URL_BASE_PATH, c.UrlBasePath)
	fmt.Fprintf(&b, "%s: %s\n", HTTP_SHUTDOWN_TIMEOUT, c.HttpShutdownTimeout)
	fmt.Fprintf(&b, "%s: %t\n", PROFILE, c.Profile)
	fmt.Fprintf(&b, "%s: %s\n", WEBSOCKET_URL_TEMPLATE, c.WebSocketUrlTemplate)
	fmt.Fprintf(&b, "%s: %s\n", WEBSOCKET_HANDSHAKE_TIMEOUT, c.WebSocketHandshakeTimeout)
	fmt.Fprintf(&b, "%s: %s\n", RECONNECT_DELAY, c.ReconnectDelay)
	fmt.Fprintf(&b, "%s: %s\n", CONNECT_RETRY_DELAY, c.ConnectRetryDelay)
	fmt.Fprintf(&b, "%s: %s\n", TENANT_ID, c.TenantId)
	fmt.Fprintf(&b, "%s: %s\n", CREDENTIAL_FILE, c.CredentialFile)
	fmt.Fprintf(&b, "%s: %s\n", CREDENTIAL_TENANT_CLAIM, c.CredentialTenantClaim)
	fmt.Fprintf(&b, "%s: %d\n", NOTIFICATION_FEED_CAPACITY, c.NotificationFeedCapacity)
	fmt.Fprintf(&b, "%s: %d\n", EVENT_DEDUPE_CACHE_SIZE, c.EventDedupeCacheSize)
	fmt.Fprintf(&b, "%s: %s\n", INVALIDATION_EVENT_TYPES, c.InvalidationEventTypes)
	fmt.Fprintf(&b, "%s: %s\n", INVALIDATION_ROLES, c.InvalidationRoles)
	fmt.Fprintf(&b, "%s: %s\n", BOOKING_API_URL_TEMPLATE, c.BookingApiUrlTemplate)
	fmt.Fprintf(&b, "%s: %s\n", BOOKING_API_TIMEOUT, c.BookingApiTimeout)

	return b.String()
}

func GetConfig() *Config {
	options := viper.New()

	options.SetDefault(URL_PATH_PREFIX, "api")
	options.SetDefault(URL_APP_NAME, "booking-sync")
	options.SetDefault(HTTP_SHUTDOWN_TIMEOUT, 2)
	options.SetDefault(SERVICE_TO_SERVICE_CREDENTIALS, "")
	options.SetDefault(PROFILE, false)

	options.SetDefault(WEBSOCKET_URL_TEMPLATE, "wss://localhost:8443/ws/notifications?company=%s&token=%s")
	options.SetDefault(WEBSOCKET_HANDSHAKE_TIMEOUT, 10)
	options.SetDefault(RECONNECT_DELAY, 3)
	options.SetDefault(CONNECT_RETRY_DELAY, 5)

	options.SetDefault(TENANT_ID, "")
	options.SetDefault(CREDENTIAL, "")
	options.SetDefault(CREDENTIAL_FILE, "")
	options.SetDefault(CREDENTIAL_TENANT_CLAIM, "tenant_id")

	options.SetDefault(NOTIFICATION_FEED_CAPACITY, 200)
	options.SetDefault(EVENT_DEDUPE_CACHE_SIZE, 512)
	options.SetDefault(INVALIDATION_EVENT_TYPES, []string{"event"})
	options.SetDefault(INVALIDATION_ROLES, []string{"customer"})

	options.SetDefault(BOOKING_API_URL_TEMPLATE, "https://localhost:8443/api/companies/%s/bookings")
	options.SetDefault(BOOKING_API_TIMEOUT, 15)

	options.SetEnvPrefix(ENV_PREFIX)
	options.AutomaticEnv()

	return &Config{
		UrlPathPrefix:               options.GetString(URL_PATH_PREFIX),
		UrlAppName:                  options.GetString(URL_APP_NAME),
		UrlBasePath:                 buildUrlBasePath(options.GetString(URL_PATH_PREFIX), options.GetString(URL_APP_NAME)),
		HttpShutdownTimeout:         options.GetDuration(HTTP_SHUTDOWN_TIMEOUT) * time.Second,
		ServiceToServiceCredentials: options.GetStringMap(SERVICE_TO_SERVICE_CREDENTIALS),
		Profile:                     options.GetBool(PROFILE),

		WebSocketUrlTemplate:      options.GetString(WEBSOCKET_URL_TEMPLATE),
		WebSocketHandshakeTimeout: options.GetDuration(WEBSOCKET_HANDSHAKE_TIMEOUT) * time.Second,
		ReconnectDelay:            options.GetDuration(RECONNECT_DELAY) * time.Second,
		ConnectRetryDelay:         options.GetDuration(CONNECT_RETRY_DELAY) * time.Second,

		TenantId:              options.GetString(TENANT_ID),
		Credential:            options.GetString(CREDENTIAL),
		CredentialFile:        options.GetString(CREDENTIAL_FILE),
		CredentialTenantClaim: options.GetString(CREDENTIAL_TENANT_CLAIM),

		NotificationFeedCapacity: options.GetInt(NOTIFICATION_FEED_CAPACITY),
		EventDedupeCacheSize:     options.GetInt(EVENT_DEDUPE_CACHE_SIZE),
		InvalidationEventTypes:   options.GetStringSlice(INVALIDATION_EVENT_TYPES),
		InvalidationRoles:        options.GetStringSlice(INVALIDATION_ROLES),

		BookingApiUrlTemplate: options.GetString(BOOKING_API_URL_TEMPLATE),
		BookingApiTimeout:     options.GetDuration(BOOKING_API_TIMEOUT) * time.Second,
	}
}

func buildUrlBasePath(pathPrefix string, appName string) string {
	return fmt.Sprintf("/%s/%s/v1", pathPrefix, appName)
}
