package client

import (
	"encoding/json"
	"log"

	"classboard/pkg/types"
)

// router decodes inbound frames and fans them out to the log through the
// reconciliation engine. It appends in arrival order and never reorders:
// the transport is a single ordered stream per channel, so arrival order is
// the server's send order.
type router struct {
	engine *engine
}

func newRouter(engine *engine) *router {
	return &router{engine: engine}
}

// dispatch applies one frame to the log for the active channel. Frames with
// an unrecognized kind or a malformed payload are dropped silently: they are
// forward-compatibility noise, not errors. Frames that do not belong to the
// active channel are dropped too; the server addresses frames by recipient,
// so delivery to the right user is not affected by what is on screen.
func (r *router) dispatch(ch Channel, self types.User, env *types.Envelope) {
	if env == nil || !types.IsValidKind(env.Kind) {
		return
	}
	if !ch.Belongs(env, self) {
		return
	}

	switch env.Kind {
	case types.KindNewQuestion:
		var q types.Question
		if err := json.Unmarshal(env.Payload(), &q); err != nil {
			log.Printf("client: dropping malformed %s frame: %v", env.Kind, err)
			return
		}
		if q.Student == nil {
			q.Student = &types.User{FullName: "Unknown", Role: types.RoleStudent}
		}
		if q.Answers == nil {
			q.Answers = []types.Answer{}
		}
		entry := Entry{Kind: env.Kind, Question: &q}
		r.engine.reconcile(ch, entry, q.Content, q.StudentID == self.ID)

	case types.KindNewAnswer:
		var a types.Answer
		if err := json.Unmarshal(env.Payload(), &a); err != nil {
			log.Printf("client: dropping malformed %s frame: %v", env.Kind, err)
			return
		}
		if a.Teacher == nil {
			a.Teacher = &types.User{FullName: "Unknown", Role: types.RoleTeacher}
		}
		entry := Entry{Kind: env.Kind, Answer: &a}
		r.engine.reconcile(ch, entry, a.Content, a.TeacherID == self.ID)

	case types.KindNewMessage:
		var m types.DirectMessage
		if err := json.Unmarshal(env.Payload(), &m); err != nil {
			log.Printf("client: dropping malformed %s frame: %v", env.Kind, err)
			return
		}
		entry := Entry{Kind: env.Kind, Message: &m}
		r.engine.reconcile(ch, entry, m.Content, m.SenderID == self.ID)
	}
}
