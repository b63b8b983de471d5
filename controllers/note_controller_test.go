package controller

import (
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteRevisions(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "owner@example.com")
	other := seedUser(t, db, "other@example.com")
	contact := seedContact(t, db, user.ID, "Ada", "ada@example.com")
	foreign := seedContact(t, db, other.ID, "F", "f@example.com")

	app := newTestApp(user)
	nc := NewNoteController(db)
	app.Get("/notes/contacts/:contactId", nc.GetContactNotes)
	app.Post("/notes/contacts/:contactId", nc.CreateNote)
	app.Put("/notes/:id", nc.UpdateNote)
	app.Get("/notes/:id/revisions", nc.GetRevisions)
	app.Delete("/notes/:id", nc.DeleteNote)

	status, body := call(t, app, "POST", fmt.Sprintf("/notes/contacts/%d", contact.ID), map[string]interface{}{"content": "first"})
	require.Equal(t, fiber.StatusCreated, status, body)
	id := uint(body["note"].(map[string]interface{})["ID"].(float64))

	status, _ = call(t, app, "POST", fmt.Sprintf("/notes/contacts/%d", foreign.ID), map[string]interface{}{"content": "nope"})
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = call(t, app, "PUT", fmt.Sprintf("/notes/%d", id), map[string]interface{}{"content": "second"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "second", body["note"].(map[string]interface{})["content"])

	status, body = call(t, app, "GET", fmt.Sprintf("/notes/%d/revisions", id), nil)
	require.Equal(t, fiber.StatusOK, status)
	revisions := body["revisions"].([]interface{})
	require.Len(t, revisions, 2)
	assert.Equal(t, "second", revisions[0].(map[string]interface{})["content"])

	status, body = call(t, app, "GET", fmt.Sprintf("/notes/contacts/%d", contact.ID), nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["notes"], 1)

	status, _ = call(t, app, "DELETE", fmt.Sprintf("/notes/%d", id), nil)
	assert.Equal(t, fiber.StatusNoContent, status)
	status, _ = call(t, app, "GET", fmt.Sprintf("/notes/%d/revisions", id), nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}
