package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jaxxstorm/smokestack/internal/api/models"
	"github.com/jaxxstorm/smokestack/internal/domain"
)

func nameParam(r *http.Request) (string, bool) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	return name, name != ""
}

// handleCreateComponent creates a new component
func (s *Server) handleCreateComponent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	var c domain.Component
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
		return
	}
	defer r.Body.Close()

	created, err := s.engine.CreateComponent(ctx, &c)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.Info("component created", zap.String("name", created.Name), zap.String("request_id", requestID))
	s.writeJSON(w, http.StatusCreated, models.ToComponentResponse(created))
}

// handleListComponents lists all components
func (s *Server) handleListComponents(w http.ResponseWriter, r *http.Request) {
	components := s.engine.ListComponents()
	out := make([]models.ComponentResponse, 0, len(components))
	for _, c := range components {
		out = append(out, models.ToComponentResponse(c))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"components": out, "total": len(out)})
}

// handleGetComponent retrieves a component by name
func (s *Server) handleGetComponent(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	name, ok := nameParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"component name is required"}, requestID)
		return
	}
	c, found := s.engine.GetComponent(name)
	if !found {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found", nil, requestID)
		return
	}
	s.writeJSON(w, http.StatusOK, models.ToComponentResponse(c))
}

// handleDeleteComponent deletes a component; rejected while any
// non-terminal operation references it.
func (s *Server) handleDeleteComponent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	name, ok := nameParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"component name is required"}, requestID)
		return
	}
	if _, found := s.engine.GetComponent(name); !found {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found", nil, requestID)
		return
	}
	if err := s.engine.DeleteComponent(ctx, name); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateTag creates a new tag
func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	var t domain.Tag
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
		return
	}
	defer r.Body.Close()

	created, err := s.engine.CreateTag(ctx, &t)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, models.ToTagResponse(created))
}

// handleListTags lists all tags
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags := s.engine.ListTags()
	out := make([]models.TagResponse, 0, len(tags))
	for _, t := range tags {
		out = append(out, models.ToTagResponse(t))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"tags": out, "total": len(out)})
}

// handleGetTag retrieves a tag by name
func (s *Server) handleGetTag(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	name, ok := nameParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"tag name is required"}, requestID)
		return
	}
	t, found := s.engine.GetTag(name)
	if !found {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found", nil, requestID)
		return
	}
	s.writeJSON(w, http.StatusOK, models.ToTagResponse(t))
}

// handleDeleteTag deletes a tag; rejected while any non-terminal
// operation references it.
func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	name, ok := nameParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"tag name is required"}, requestID)
		return
	}
	if _, found := s.engine.GetTag(name); !found {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found", nil, requestID)
		return
	}
	if err := s.engine.DeleteTag(ctx, name); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateGroup creates a new group
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	var g domain.Group
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
		return
	}
	defer r.Body.Close()

	created, err := s.engine.CreateGroup(ctx, &g)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, models.ToGroupResponse(created))
}

// handleListGroups lists all groups
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups := s.engine.ListGroups()
	out := make([]models.GroupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, models.ToGroupResponse(g))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"groups": out, "total": len(out)})
}

// handleGetGroup retrieves a group by name
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	name, ok := nameParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"group name is required"}, requestID)
		return
	}
	g, found := s.engine.GetGroup(name)
	if !found {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found", nil, requestID)
		return
	}
	s.writeJSON(w, http.StatusOK, models.ToGroupResponse(g))
}

// handleDeleteGroup deletes a group
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	name, ok := nameParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"group name is required"}, requestID)
		return
	}
	if _, found := s.engine.GetGroup(name); !found {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found", nil, requestID)
		return
	}
	if err := s.engine.DeleteGroup(ctx, name); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePutUser inserts or replaces a user record
func (s *Server) handlePutUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	name, ok := nameParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"user name is required"}, requestID)
		return
	}

	var u domain.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
		return
	}
	defer r.Body.Close()
	u.Name = name

	created, err := s.engine.PutUser(ctx, &u)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, models.ToUserResponse(created))
}

// handleGetUser retrieves a user by name
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	name, ok := nameParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"user name is required"}, requestID)
		return
	}
	u, found := s.engine.GetUser(name)
	if !found {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found", nil, requestID)
		return
	}
	s.writeJSON(w, http.StatusOK, models.ToUserResponse(u))
}

// handleListSubscriptions lists the acting user's subscriptions
func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	actor := requestActor(r)
	if actor == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"acting user is required"}, requestID)
		return
	}
	subs := s.engine.ListSubscriptions(actor)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": subs, "total": len(subs)})
}

func (s *Server) decodeSubscription(w http.ResponseWriter, r *http.Request) (domain.Subscription, bool) {
	requestID := r.Header.Get("X-Request-ID")

	var req models.SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
		return domain.Subscription{}, false
	}
	defer r.Body.Close()

	subscriber := requestActor(r)
	if req.Subscriber != "" {
		subscriber = req.Subscriber
	}
	if subscriber == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"acting user is required"}, requestID)
		return domain.Subscription{}, false
	}
	return domain.Subscription{Subscriber: subscriber, Selector: req.Selector}, true
}

// handleSubscribe adds a subscription for the acting user
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.decodeSubscription(w, r)
	if !ok {
		return
	}
	if err := s.engine.Subscribe(r.Context(), sub); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sub)
}

// handleUnsubscribe removes a subscription for the acting user
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.decodeSubscription(w, r)
	if !ok {
		return
	}
	if err := s.engine.Unsubscribe(r.Context(), sub); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListSinks lists all system sinks
func (s *Server) handleListSinks(w http.ResponseWriter, r *http.Request) {
	sinks := s.engine.ListSinks()
	out := make([]models.SinkResponse, 0, len(sinks))
	for _, sink := range sinks {
		out = append(out, models.ToSinkResponse(sink))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"sinks": out, "total": len(out)})
}

// handleCreateSink registers a new system sink
func (s *Server) handleCreateSink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	var sink domain.SystemSink
	if err := json.NewDecoder(r.Body).Decode(&sink); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
		return
	}
	defer r.Body.Close()

	created, err := s.engine.CreateSink(ctx, &sink)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("system sink registered",
		zap.String("sink_id", created.ID),
		zap.String("kind", string(created.Kind)),
		zap.String("request_id", requestID))
	s.writeJSON(w, http.StatusCreated, models.ToSinkResponse(created))
}

// handleDeleteSink removes a system sink
func (s *Server) handleDeleteSink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"sink id is required"}, requestID)
		return
	}
	if _, found := s.engine.GetSink(id); !found {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found", nil, requestID)
		return
	}
	if err := s.engine.DeleteSink(ctx, id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
