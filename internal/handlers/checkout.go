package handlers

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Adrien490/synclune-sub011/internal/platform/requestctx"
	"github.com/Adrien490/synclune-sub011/internal/services"
)

// ShopRedirects holds the storefront destinations the return endpoint can pick.
type ShopRedirects struct {
	ConfirmationURL string
	CheckoutURL     string
	CancellationURL string
}

// CheckoutHandlers exposes the storefront return endpoint. Whatever happens
// during reconciliation the customer always ends up on a storefront page,
// never on a raw API error.
type CheckoutHandlers struct {
	checkout  services.CheckoutService
	redirects ShopRedirects
	limiter   RateLimiter
}

// NewCheckoutHandlers constructs handlers for the checkout return flow.
func NewCheckoutHandlers(checkout services.CheckoutService, redirects ShopRedirects, limiter RateLimiter) *CheckoutHandlers {
	return &CheckoutHandlers{
		checkout:  checkout,
		redirects: redirects,
		limiter:   limiter,
	}
}

// Routes registers the /checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/return", h.handleReturn)
}

func (h *CheckoutHandlers) handleReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("checkout return panicked", zap.Any("panic", recovered))
			h.redirectError(w, r)
		}
	}()

	if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
		// Rate limited visitors still land on the storefront.
		h.redirectError(w, r)
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" || h.checkout == nil {
		h.redirectError(w, r)
		return
	}

	// The order id rides along on the redirect but only its shape is checked;
	// the confirmation order number comes from the gateway session metadata.
	orderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
	if orderID != "" && !wellFormedID(orderID) {
		logger.Warn("checkout return carried malformed order id", zap.String("sessionId", sessionID))
		h.redirectError(w, r)
		return
	}

	outcome, err := h.checkout.ReconcileReturn(ctx, services.ReconcileReturnCommand{SessionID: sessionID})
	if err != nil {
		logger.Warn("checkout reconciliation failed", zap.String("sessionId", sessionID), zap.Error(err))
		h.redirectError(w, r)
		return
	}

	switch outcome.Result {
	case services.CheckoutResultConfirmed:
		h.redirect(w, r, h.redirects.ConfirmationURL, url.Values{"order": []string{outcome.OrderNumber}})
	case services.CheckoutResultConfirmedPending:
		h.redirect(w, r, h.redirects.ConfirmationURL, url.Values{"pending": []string{"true"}})
	case services.CheckoutResultRetry:
		h.redirect(w, r, h.redirects.CheckoutURL, nil)
	case services.CheckoutResultExpired:
		h.redirect(w, r, h.redirects.CancellationURL, url.Values{"reason": []string{"expired"}})
	default:
		h.redirectError(w, r)
	}
}

func (h *CheckoutHandlers) redirectError(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, h.redirects.CancellationURL, url.Values{"reason": []string{"processing_error"}})
}

func (h *CheckoutHandlers) redirect(w http.ResponseWriter, r *http.Request, target string, params url.Values) {
	destination := buildRedirectURL(target, params)
	if destination == "" {
		destination = "/"
	}
	http.Redirect(w, r, destination, http.StatusSeeOther)
}

func buildRedirectURL(target string, params url.Values) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return target
	}
	if len(params) > 0 {
		query := parsed.Query()
		for key, values := range params {
			for _, value := range values {
				if strings.TrimSpace(value) == "" {
					continue
				}
				query.Set(key, value)
			}
		}
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}

func wellFormedID(id string) bool {
	if len(id) > 64 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
