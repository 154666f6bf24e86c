package worker

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weather-shell/internal/fetch"
	"github.com/i474232898/weather-shell/internal/notify"
)

const (
	NotificationTitle = "NEURON Weather"
	DefaultPushBody   = "New weather update available!"
	NotificationIcon  = "/logo192.png"

	ActionView    = "view"
	ActionDismiss = "dismiss"
)

// Push delivers a push message. A nil payload means the message had no data.
func (c *Controller) Push(ctx context.Context, payload []byte) error {
	ev := NewEvent(EventPush)
	ev.Payload = payload
	return c.dispatchAndWait(ctx, ev)
}

// NotificationClick delivers a click on a notification body (action "") or
// one of its action buttons.
func (c *Controller) NotificationClick(ctx context.Context, id, action string) error {
	ev := NewEvent(EventNotificationClick)
	ev.NotificationID = id
	ev.Action = action
	return c.dispatchAndWait(ctx, ev)
}

func (c *Controller) handlePush(_ context.Context, ev *Event) (*fetch.Response, error) {
	if c.notifications == nil {
		return nil, nil
	}

	body := DefaultPushBody
	if ev.Payload != nil {
		body = string(ev.Payload)
	}

	ev.WaitUntil(func(context.Context) error {
		n := c.notifications.Show(notify.Notification{
			Title:   NotificationTitle,
			Body:    body,
			Icon:    NotificationIcon,
			Badge:   NotificationIcon,
			Vibrate: []int{100, 50, 100},
			Data: notify.Data{
				DateOfArrival: time.Now().UnixMilli(),
				PrimaryKey:    1,
			},
			Actions: []notify.Action{
				{Action: ActionView, Title: "View Weather", Icon: NotificationIcon},
				{Action: ActionDismiss, Title: "Close", Icon: NotificationIcon},
			},
		})
		log.Infof("worker: showing notification %s", n.ID)
		return nil
	})
	return nil, nil
}

func (c *Controller) handleNotificationClick(_ context.Context, ev *Event) (*fetch.Response, error) {
	if c.notifications != nil {
		if err := c.notifications.Close(ev.NotificationID); err != nil {
			return nil, fmt.Errorf("close notification %s: %w", ev.NotificationID, err)
		}
	}

	switch ev.Action {
	case "", ActionView:
	default:
		return nil, nil
	}
	if c.clients == nil {
		return nil, nil
	}

	ev.WaitUntil(func(context.Context) error {
		client, opened := c.clients.OpenOrFocus("/")
		if opened {
			log.Infof("worker: opened window %s", client.ID)
		} else {
			log.Infof("worker: focused window %s", client.ID)
		}
		return nil
	})
	return nil, nil
}
