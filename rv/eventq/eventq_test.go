/*
 * rvsim - Event queue test cases.
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

package eventq

import "testing"

func TestFiresInDeltaOrder(t *testing.T) {
	q := New()
	var fired []int64
	cb := func(arg int64) { fired = append(fired, arg) }
	q.Add(30, cb, 3)
	q.Add(10, cb, 1)
	q.Add(20, cb, 2)

	q.Advance(10)
	if len(fired) != 1 || fired[0] != 1 {
		t.Fatalf("after 10 ticks fired = %v, want [1]", fired)
	}
	q.Advance(20)
	if len(fired) != 3 || fired[1] != 2 || fired[2] != 3 {
		t.Fatalf("after 30 ticks fired = %v, want [1 2 3]", fired)
	}
	if q.Pending() {
		t.Error("queue should be empty")
	}
}

func TestZeroDeltaFiresImmediately(t *testing.T) {
	q := New()
	ran := false
	id := q.Add(0, func(int64) { ran = true }, 0)
	if !ran || id != -1 {
		t.Errorf("ran=%v id=%d, want immediate fire with id -1", ran, id)
	}
}

func TestCancelPreservesLaterFiringTimes(t *testing.T) {
	q := New()
	var fired []int64
	cb := func(arg int64) { fired = append(fired, arg) }
	q.Add(10, cb, 1)
	id := q.Add(20, cb, 2)
	q.Add(30, cb, 3)
	q.Cancel(id)

	q.Advance(29)
	if len(fired) != 1 {
		t.Fatalf("fired = %v before tick 30", fired)
	}
	q.Advance(1)
	if len(fired) != 2 || fired[1] != 3 {
		t.Fatalf("fired = %v, want [1 3] at tick 30", fired)
	}
}

func TestSameTickFiresInInsertionOrder(t *testing.T) {
	q := New()
	var fired []int64
	cb := func(arg int64) { fired = append(fired, arg) }
	q.Add(5, cb, 1)
	q.Add(5, cb, 2)
	q.Advance(5)
	if len(fired) != 2 || fired[0] != 1 || fired[1] != 2 {
		t.Fatalf("fired = %v, want [1 2]", fired)
	}
}
