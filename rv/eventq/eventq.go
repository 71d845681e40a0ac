/*
 * rvsim - Delta-list event queue.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package eventq implements a delta-time ordered callback list, used to
// schedule scheduler snapshot checkpoints without requiring a wall-clock
// timer. Every tick advances the head event's
// remaining delta; events firing at the same tick run in insertion order.
package eventq

// Callback receives the argument it was scheduled with.
type Callback func(arg int64)

type event struct {
	delta int64 // Ticks remaining after the previous event in the list fires.
	cb    Callback
	arg   int64
	id    int64
	prev  *event
	next  *event
}

// Queue owns a single hart's (or scheduler's) delta list. Not safe for
// concurrent use; callers serialize access the same way Hart.singleStep is
// serialized by the scheduler.
type Queue struct {
	head   *event
	tail   *event
	nextID int64
}

// New returns an empty event queue.
func New() *Queue {
	return &Queue{}
}

// Add schedules cb to run after the given number of ticks and returns an id
// that Cancel can use to remove it before it fires. A delta of 0 runs the
// callback immediately and returns -1.
func (q *Queue) Add(delta int64, cb Callback, arg int64) int64 {
	if delta <= 0 {
		cb(arg)
		return -1
	}

	q.nextID++
	ev := &event{delta: delta, cb: cb, arg: arg, id: q.nextID}

	cur := q.head
	for cur != nil {
		// Strict less-than: an equal delta files in behind the existing
		// event so same-tick events fire in insertion order.
		if ev.delta < cur.delta {
			cur.delta -= ev.delta
			ev.prev = cur.prev
			ev.next = cur
			cur.prev = ev
			if ev.prev != nil {
				ev.prev.next = ev
			} else {
				q.head = ev
			}
			return ev.id
		}
		ev.delta -= cur.delta
		cur = cur.next
	}

	ev.prev = q.tail
	if q.tail != nil {
		q.tail.next = ev
	} else {
		q.head = ev
	}
	q.tail = ev
	return ev.id
}

// Cancel removes a pending event by id, folding its remaining delta into the
// following event so overall firing times of later events are preserved.
func (q *Queue) Cancel(id int64) {
	for cur := q.head; cur != nil; cur = cur.next {
		if cur.id != id {
			continue
		}
		if cur.next != nil {
			cur.next.delta += cur.delta
			cur.next.prev = cur.prev
		} else {
			q.tail = cur.prev
		}
		if cur.prev != nil {
			cur.prev.next = cur.next
		} else {
			q.head = cur.next
		}
		return
	}
}

// Pending reports whether any event is scheduled.
func (q *Queue) Pending() bool {
	return q.head != nil
}

// Advance moves time forward by t ticks, firing every event whose delta has
// been exhausted, in order.
func (q *Queue) Advance(t int64) {
	if q.head == nil {
		return
	}
	q.head.delta -= t
	for q.head != nil && q.head.delta <= 0 {
		fired := q.head
		q.head = fired.next
		if q.head != nil {
			q.head.prev = nil
			q.head.delta += fired.delta // Carry any overshoot past this event.
		} else {
			q.tail = nil
		}
		fired.cb(fired.arg)
	}
}
