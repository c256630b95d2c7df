package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/gochang/agrialimi/internal/model"
)

// SubscriptionStore keeps per-user web push subscriptions in the KV store,
// one record per device, keyed "<userID>/<subID>".
type SubscriptionStore struct {
	kv *KV
}

func NewSubscriptionStore(kv *KV) *SubscriptionStore {
	return &SubscriptionStore{kv: kv}
}

// Create registers a subscription. Re-subscribing an endpoint the user already
// has updates the existing record in place instead of duplicating it.
func (s *SubscriptionStore) Create(userID, endpoint, p256dh, auth, deviceName string) (*model.PushSubscription, error) {
	existing, err := s.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	sub := model.PushSubscription{
		ID:         uuid.NewString(),
		UserID:     userID,
		Endpoint:   endpoint,
		P256dhKey:  p256dh,
		AuthKey:    auth,
		DeviceName: deviceName,
		CreatedAt:  time.Now().UTC(),
	}
	for _, e := range existing {
		if e.Endpoint == endpoint {
			sub.ID = e.ID
			sub.CreatedAt = e.CreatedAt
			break
		}
	}

	if err := s.kv.Set(NSPush, userID+"/"+sub.ID, sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListByUser returns all of a user's subscriptions.
func (s *SubscriptionStore) ListByUser(userID string) ([]model.PushSubscription, error) {
	keys, err := s.kv.Scan(NSPush, userID+"/")
	if err != nil {
		return nil, err
	}

	var subs []model.PushSubscription
	for _, key := range keys {
		var sub model.PushSubscription
		ok, err := s.kv.Get(NSPush, key, &sub)
		if err != nil {
			return nil, err
		}
		if ok {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// Delete removes one subscription.
func (s *SubscriptionStore) Delete(userID, subID string) error {
	return s.kv.Remove(NSPush, userID+"/"+subID)
}

// DeleteByEndpoint removes a user's subscription for the given endpoint.
// Used to prune expired (410 Gone) registrations.
func (s *SubscriptionStore) DeleteByEndpoint(userID, endpoint string) error {
	subs, err := s.ListByUser(userID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if sub.Endpoint == endpoint {
			if err := s.kv.Remove(NSPush, userID+"/"+sub.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
