package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sujalbistaa/drops/internal/apperr"
	"github.com/sujalbistaa/drops/internal/drops"
	"github.com/sujalbistaa/drops/internal/economy"
	"github.com/sujalbistaa/drops/internal/gating"
	"github.com/sujalbistaa/drops/internal/lifecycle"
	"github.com/sujalbistaa/drops/internal/models"
	"github.com/sujalbistaa/drops/internal/polls"
	"github.com/sujalbistaa/drops/internal/presence"
	"github.com/sujalbistaa/drops/internal/ranking"
	"github.com/sujalbistaa/drops/internal/votes"
	"github.com/sujalbistaa/drops/internal/ws"
)

// identityHeader carries the caller's opaque device id.
const identityHeader = "X-Device-ID"

// --- Structs for request binding ---
type CreateDropInput struct {
	CommunityID     string   `json:"communityId" binding:"required,max=64"`
	Content         string   `json:"content" binding:"required"`
	ImageURL        string   `json:"imageUrl" binding:"omitempty,url,max=512"`
	IsShadow        bool     `json:"isShadow"`
	IsOpen          bool     `json:"isOpen"`
	UnlockThreshold int      `json:"unlockThreshold" binding:"min=0,max=1000"`
	Tease           string   `json:"tease" binding:"max=2000"`
	PollOptions     []string `json:"pollOptions" binding:"max=6"`
}

type VoteInput struct {
	Value int `json:"value" binding:"required,oneof=-1 1"`
}

type PollInput struct {
	Option *int `json:"option" binding:"required,min=0"`
}

type HeartbeatInput struct {
	Typing bool `json:"typing"`
}

// FeedItem is a Drop as shown in a feed. Locked shadow Drops show their
// tease instead of the content.
type FeedItem struct {
	models.Drop
	Locked    bool            `json:"locked"`
	Tease     string          `json:"tease,omitempty"`
	State     lifecycle.State `json:"state"`
	Countdown string          `json:"countdown"`
	Posted    string          `json:"posted"`
	Score     float64         `json:"score"`
}

type FeedResponse struct {
	Feed []FeedItem `json:"feed"`
	Hot  []string   `json:"hot"`
	New  []string   `json:"new"`
}

type Env struct {
	Drops    *drops.Service
	Votes    *votes.Ledger
	Gate     *gating.Gate
	Polls    *polls.Engine
	Feed     *ranking.Feed
	Presence presence.Tracker
	Ledger   *economy.Ledger
	Hub      *ws.Hub
	Log      logrus.FieldLogger

	FeedLimit int
	// Now is replaced in tests.
	Now func() time.Time
}

func (e *Env) GetFeed(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 || (e.FeedLimit > 0 && limit > e.FeedLimit) {
		limit = e.FeedLimit
	}
	q := ranking.Query{
		CommunityID: c.Query("community"),
		Open:        c.Query("open") == "true",
		Limit:       limit,
	}
	now := e.now()
	lanes, err := e.Feed.Build(c.Request.Context(), q, now)
	if err != nil {
		e.respondError(c, err)
		return
	}

	resp := FeedResponse{
		Feed: make([]FeedItem, 0, len(lanes.Feed)),
		Hot:  ids(lanes.Hot),
		New:  ids(lanes.New),
	}
	for i := range lanes.Feed {
		resp.Feed = append(resp.Feed, feedItem(lanes.Feed[i], now))
	}
	c.JSON(http.StatusOK, resp)
}

func (e *Env) CreateDrop(c *gin.Context) {
	var input CreateDropInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	author, ok := e.identity(c)
	if !ok {
		return
	}

	drop, err := e.Drops.Create(c.Request.Context(), drops.Draft{
		CommunityID:     input.CommunityID,
		AuthorID:        author,
		Content:         input.Content,
		ImageURL:        input.ImageURL,
		IsShadow:        input.IsShadow,
		IsOpen:          input.IsOpen,
		UnlockThreshold: input.UnlockThreshold,
		Tease:           input.Tease,
		PollOptions:     input.PollOptions,
	}, e.now())
	if err != nil {
		e.respondError(c, err)
		return
	}

	item := feedItem(*drop, e.now())
	if drop.Status == models.StatusLive {
		e.Hub.Publish(drop.CommunityID, ws.EventNewDrop, item)
	}
	// the author always sees their own words
	item.Content = drop.Content
	c.JSON(http.StatusCreated, item)
}

func (e *Env) GetDrop(c *gin.Context) {
	viewer := strings.TrimSpace(c.GetHeader(identityHeader))
	v, err := e.Gate.View(c.Request.Context(), c.Param("id"), viewer, e.now())
	if err != nil {
		e.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (e *Env) VoteOnDrop(c *gin.Context) {
	var input VoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	voter, ok := e.identity(c)
	if !ok {
		return
	}

	res, err := e.Votes.Cast(c.Request.Context(), c.Param("id"), voter, input.Value)
	if err != nil {
		e.respondError(c, err)
		return
	}

	community := e.communityOf(c, res.DropID)
	e.Hub.Publish(community, ws.EventVote, gin.H{
		"id":        res.DropID,
		"upvotes":   res.Upvotes,
		"downvotes": res.Downvotes,
	})
	if res.Unlocked {
		e.Hub.Publish(community, ws.EventUnlock, gin.H{"id": res.DropID})
	}
	c.JSON(http.StatusOK, res)
}

func (e *Env) PeekDrop(c *gin.Context) {
	viewer, ok := e.identity(c)
	if !ok {
		return
	}
	res, err := e.Gate.Peek(c.Request.Context(), c.Param("id"), viewer)
	if err != nil {
		e.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (e *Env) PeekWord(c *gin.Context) {
	viewer, ok := e.identity(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid word index"})
		return
	}
	res, err := e.Gate.PeekWord(c.Request.Context(), c.Param("id"), viewer, index)
	if err != nil {
		e.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (e *Env) VoteOnPoll(c *gin.Context) {
	var input PollInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	voter, ok := e.identity(c)
	if !ok {
		return
	}

	res, err := e.Polls.Cast(c.Request.Context(), c.Param("id"), *input.Option, voter)
	if err != nil {
		e.respondError(c, err)
		return
	}
	if !res.Already {
		e.Hub.Publish(e.communityOf(c, res.DropID), ws.EventPoll, res)
	}
	c.JSON(http.StatusOK, res)
}

func (e *Env) Heartbeat(c *gin.Context) {
	var input HeartbeatInput
	// an empty body, chunked or not, is a plain viewing heartbeat
	if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	identity, ok := e.identity(c)
	if !ok {
		return
	}

	ctx, now, subject := c.Request.Context(), e.now(), c.Param("subject")
	if err := e.Presence.Heartbeat(ctx, subject, identity, input.Typing, now); err != nil {
		e.respondError(c, apperr.Wrap("presence heartbeat", err))
		return
	}
	counts, err := e.Presence.Counts(ctx, subject, now)
	if err != nil {
		e.respondError(c, apperr.Wrap("presence counts", err))
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (e *Env) GetPresence(c *gin.Context) {
	counts, err := e.Presence.Counts(c.Request.Context(), c.Param("subject"), e.now())
	if err != nil {
		e.respondError(c, apperr.Wrap("presence counts", err))
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (e *Env) GetBalance(c *gin.Context) {
	identity, ok := e.identity(c)
	if !ok {
		return
	}
	coins, err := e.Ledger.Balance(c.Request.Context(), identity)
	if err != nil {
		e.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coins": coins})
}

func (e *Env) GetHistory(c *gin.Context) {
	identity, ok := e.identity(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := e.Ledger.History(c.Request.Context(), identity, limit)
	if err != nil {
		e.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (e *Env) RejectDrop(c *gin.Context) {
	id := c.Param("id")
	community := e.communityOf(c, id)
	if err := e.Drops.Reject(c.Request.Context(), id); err != nil {
		e.respondError(c, err)
		return
	}
	e.Hub.Publish(community, ws.EventDelete, gin.H{"id": id})
	c.JSON(http.StatusOK, gin.H{"message": "Drop rejected"})
}

func (e *Env) DeleteDrop(c *gin.Context) {
	id := c.Param("id")
	community := e.communityOf(c, id)
	if err := e.Drops.Delete(c.Request.Context(), id); err != nil {
		e.respondError(c, err)
		return
	}
	e.Hub.Publish(community, ws.EventDelete, gin.H{"id": id})
	c.JSON(http.StatusOK, gin.H{"message": "Drop deleted"})
}

// respondError maps an engine error kind to a status code.
func (e *Env) respondError(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, "Internal error"
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, apperr.ErrNotFound):
		status, msg = http.StatusNotFound, "Drop not found"
	case errors.Is(err, apperr.ErrInsufficientFunds):
		status, msg = http.StatusPaymentRequired, "Not enough coins"
	case errors.Is(err, apperr.ErrRateLimited):
		status, msg = http.StatusTooManyRequests, err.Error()
	case errors.Is(err, apperr.ErrTransient):
		status, msg = http.StatusServiceUnavailable, "Temporarily unavailable, try again"
	}
	if status >= http.StatusInternalServerError {
		e.logger().WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, gin.H{"error": msg})
}

// identity reads the caller's device id, answering 400 when it is missing.
func (e *Env) identity(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.GetHeader(identityHeader))
	if id == "" || len(id) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid " + identityHeader + " header"})
		return "", false
	}
	return id, true
}

// communityOf looks up the community a live event belongs to. An unknown
// Drop yields "", which reaches every client.
func (e *Env) communityOf(c *gin.Context, dropID string) string {
	d, err := e.Drops.Get(c.Request.Context(), dropID)
	if err != nil {
		return ""
	}
	return d.CommunityID
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Env) logger() logrus.FieldLogger {
	if e.Log == nil {
		return logrus.StandardLogger()
	}
	return e.Log
}

func feedItem(d models.Drop, now time.Time) FeedItem {
	item := FeedItem{
		Drop:      d,
		State:     lifecycle.StateAt(now, d.ActiveAt, d.ExpiresAt),
		Countdown: lifecycle.Countdown(now, d.ExpiresAt),
		Posted:    lifecycle.Ago(now, d.CreatedAt),
		Score:     ranking.HotScore(&d, now),
	}
	if d.Locked() {
		item.Locked = true
		item.Content = ""
		item.Tease = d.Tease
	}
	return item
}

func ids(ds []models.Drop) []string {
	out := make([]string, len(ds))
	for i := range ds {
		out[i] = ds[i].ID
	}
	return out
}
