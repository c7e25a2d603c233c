package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/campusgig/messaging/internal/observability"
	"github.com/campusgig/messaging/internal/router"
	"github.com/campusgig/messaging/internal/websocket"
	"go.uber.org/zap"
)

// Locator resolves the instances holding a user's sessions.
type Locator interface {
	Instances(ctx context.Context, userID string) (map[string]string, error)
}

// Publisher forwards a payload to another instance.
type Publisher interface {
	Publish(ctx context.Context, target string, payload []byte) error
}

type Dispatcher struct {
	registry   *websocket.Registry
	locator    Locator
	router     Publisher
	instanceID string
}

// New builds a dispatcher. With a nil locator or router it only delivers to
// rooms held by this instance.
func New(registry *websocket.Registry, locator Locator, router Publisher, instanceID string) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		locator:    locator,
		router:     router,
		instanceID: instanceID,
	}
}

// Deliver pushes frame to every session in userID's room and reports how many
// local sessions and remote instances it reached.
func (d *Dispatcher) Deliver(ctx context.Context, userID string, frame []byte) int {
	log := observability.GetLogger(ctx)

	n := d.deliverLocal(userID, frame)

	if d.locator == nil || d.router == nil {
		return n
	}

	sessions, err := d.locator.Instances(ctx, userID)
	if err != nil {
		log.Error("dispatcher: presence lookup failed", zap.String("user_id", userID), zap.Error(err))
		return n
	}

	remoteInstances := make(map[string]struct{})
	for _, instance := range sessions {
		if instance != d.instanceID {
			remoteInstances[instance] = struct{}{}
		}
	}
	if len(remoteInstances) == 0 {
		return n
	}

	payload, err := json.Marshal(router.Routed{UserID: userID, Frame: frame})
	if err != nil {
		log.Error("dispatcher: fail to encode routed frame", zap.Error(err))
		return n
	}

	// One publish per instance, however many sessions it holds.
	for instance := range remoteInstances {
		if err := d.router.Publish(ctx, instance, payload); err != nil {
			log.Error("dispatcher: remote routing failed", zap.String("instance", instance), zap.Error(err))
			observability.PushesTotal.WithLabelValues(observability.ServiceLabel, "failed").Inc()
			continue
		}
		observability.PushesTotal.WithLabelValues(observability.ServiceLabel, "remote").Inc()
		n++
	}

	return n
}

// DeliverRemote handles a payload routed here by another instance.
func (d *Dispatcher) DeliverRemote(payload []byte) {
	log := observability.GetLogger(context.Background())

	var routed router.Routed
	if err := json.Unmarshal(payload, &routed); err != nil {
		log.Error("dispatcher: error unmarshaling remote frame", zap.Error(err))
		return
	}
	if routed.UserID == "" || len(routed.Frame) == 0 {
		log.Warn("dispatcher: dropping incomplete remote frame")
		return
	}

	n := d.deliverLocal(routed.UserID, routed.Frame)
	log.Debug("dispatcher: remote delivery (pubsub)", zap.String("user_id", routed.UserID), zap.Int("sessions", n))
}

func (d *Dispatcher) deliverLocal(userID string, frame []byte) int {
	n := 0
	for _, s := range d.registry.Room(userID) {
		if s.TrySend(frame) {
			n++
			observability.PushesTotal.WithLabelValues(observability.ServiceLabel, "local").Inc()
		} else {
			observability.PushesTotal.WithLabelValues(observability.ServiceLabel, "dropped").Inc()
		}
	}
	return n
}
