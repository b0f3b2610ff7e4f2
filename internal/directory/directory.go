// Package directory is the in-process view over persisted channels, users,
// away registers and messages.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/meshchat/internal/store"
	"github.com/vovakirdan/meshchat/internal/utils"
)

// ErrChannelExists is returned by CreateChannel for a name already in use.
var ErrChannelExists = errors.New("channel already exists")

type record interface {
	key() string
	validate() error
}

// Directory translates store documents into records usable by handlers.
type Directory struct {
	store store.Store
	log   zerolog.Logger
}

// New builds a directory backed by st.
func New(st store.Store, logger *zerolog.Logger) *Directory {
	return &Directory{
		store: st,
		log:   logger.With().Str("component", "directory").Logger(),
	}
}

func docID(table store.Table, key string) int64 {
	return utils.DocID(string(table) + "/" + key)
}

func put[T record](ctx context.Context, d *Directory, table store.Table, rec T) error {
	if err := rec.validate(); err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", table, err)
	}
	if err := d.store.Upsert(ctx, table, &store.Document{ID: docID(table, rec.key()), Body: body}); err != nil {
		return fmt.Errorf("upsert %s %q: %w", table, rec.key(), err)
	}
	return nil
}

func get[T record](ctx context.Context, d *Directory, table store.Table, key string) (T, bool, error) {
	var zero T
	doc, err := d.store.GetByID(ctx, table, docID(table, key))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("get %s %q: %w", table, key, err)
	}
	rec, err := decode[T](doc)
	if err != nil {
		d.log.Warn().Err(err).Str("table", string(table)).Str("key", key).Msg("discarding malformed record")
		return zero, false, nil
	}
	if rec.key() != key {
		// Identifier collision between two keys; treat as absent.
		d.log.Warn().Str("table", string(table)).Str("key", key).Str("stored", rec.key()).Msg("record key mismatch")
		return zero, false, nil
	}
	return rec, true, nil
}

func list[T record](ctx context.Context, d *Directory, table store.Table) ([]T, error) {
	docs, err := d.store.GetAll(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	recs := make([]T, 0, len(docs))
	for _, doc := range docs {
		rec, err := decode[T](doc)
		if err != nil {
			d.log.Debug().Err(err).Str("table", string(table)).Int64("id", doc.ID).Msg("skipping malformed record")
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// search lists the well-formed records of table accepted by match.
func search[T record](ctx context.Context, d *Directory, table store.Table, match func(T) bool) ([]T, error) {
	docs, err := d.store.Search(ctx, table, func(doc *store.Document) bool {
		rec, err := decode[T](doc)
		return err == nil && match(rec)
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", table, err)
	}
	recs := make([]T, 0, len(docs))
	for _, doc := range docs {
		if rec, err := decode[T](doc); err == nil {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func decode[T record](doc *store.Document) (T, error) {
	var rec T
	if err := json.Unmarshal(doc.Body, &rec); err != nil {
		return rec, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := rec.validate(); err != nil {
		return rec, err
	}
	return rec, nil
}

// ==== Channels ====

// CreateChannel persists a new channel. It fails with ErrChannelExists if
// the name is already known.
func (d *Directory) CreateChannel(ctx context.Context, ch Channel) error {
	_, exists, err := d.FindChannel(ctx, ch.Name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %q", ErrChannelExists, ch.Name)
	}
	return put(ctx, d, store.TableChannels, ch)
}

// UpsertChannel creates or replaces a channel.
func (d *Directory) UpsertChannel(ctx context.Context, ch Channel) error {
	return put(ctx, d, store.TableChannels, ch)
}

// RemoveChannel forgets a channel. Removing an unknown channel is not an
// error.
func (d *Directory) RemoveChannel(ctx context.Context, name string) error {
	if err := d.store.Remove(ctx, store.TableChannels, docID(store.TableChannels, name)); err != nil {
		return fmt.Errorf("remove channel %q: %w", name, err)
	}
	return nil
}

// FindChannel looks a channel up by name.
func (d *Directory) FindChannel(ctx context.Context, name string) (Channel, bool, error) {
	return get[Channel](ctx, d, store.TableChannels, name)
}

// Channels lists every known channel ordered by name.
func (d *Directory) Channels(ctx context.Context) ([]Channel, error) {
	chs, err := list[Channel](ctx, d, store.TableChannels)
	if err != nil {
		return nil, err
	}
	sort.Slice(chs, func(i, j int) bool { return chs[i].Name < chs[j].Name })
	return chs, nil
}

// ==== Users ====

// UpsertUser creates or replaces a user record.
func (d *Directory) UpsertUser(ctx context.Context, u User) error {
	return put(ctx, d, store.TableUsers, u)
}

// FindUser looks a user up by nickname.
func (d *Directory) FindUser(ctx context.Context, nickname string) (User, bool, error) {
	return get[User](ctx, d, store.TableUsers, nickname)
}

// Users lists every known user ordered by nickname.
func (d *Directory) Users(ctx context.Context) ([]User, error) {
	users, err := list[User](ctx, d, store.TableUsers)
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Nickname < users[j].Nickname })
	return users, nil
}

// ==== Away registry ====

// FindAway returns the away register of nickname, if the user is away.
func (d *Directory) FindAway(ctx context.Context, nickname string) (AwayRegister, bool, error) {
	return get[AwayRegister](ctx, d, store.TableAway, nickname)
}

// ToggleAway flips the away state of nickname. It removes an existing
// register, or creates one carrying message. It reports the new state.
func (d *Directory) ToggleAway(ctx context.Context, nickname, message string) (bool, error) {
	_, away, err := d.FindAway(ctx, nickname)
	if err != nil {
		return false, err
	}
	if away {
		if err := d.store.Remove(ctx, store.TableAway, docID(store.TableAway, nickname)); err != nil {
			return true, fmt.Errorf("remove away register %q: %w", nickname, err)
		}
		return false, nil
	}
	if err := put(ctx, d, store.TableAway, AwayRegister{Nickname: nickname, Message: message}); err != nil {
		return false, err
	}
	return true, nil
}

// ==== Messages ====

// AddMessage appends a message to a channel log. A missing ID or timestamp
// is filled in. The stored message is returned.
func (d *Directory) AddMessage(ctx context.Context, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = utils.NewID()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	if err := put(ctx, d, store.TableMessages, msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Messages lists the messages of a channel in timestamp order. An empty
// channel name lists every message.
func (d *Directory) Messages(ctx context.Context, channel string) ([]Message, error) {
	msgs, err := search(ctx, d, store.TableMessages, func(m Message) bool {
		return channel == "" || m.Channel == channel
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })
	return msgs, nil
}
