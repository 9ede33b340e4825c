package main

import (
	"context"
	"fmt"

	"github.com/trezcool/academia/core/course"
)

func (cli *commandLine) printSweep(res course.SweepResult) {
	if !res.Swept {
		fmt.Fprintf(cli.out, "course %d: not expired\n", res.CourseID)
		return
	}
	fmt.Fprintf(cli.out, "course %d: swept %d messages, %d participants, %d enrollments\n",
		res.CourseID, res.Messages, res.Participants, res.Enrollments)
}

func (cli *commandLine) sweep(courseID int) error {
	res, err := cli.courses.SweepOne(context.Background(), courseID)
	if err != nil {
		return err
	}
	cli.printSweep(res)
	return nil
}

// sweepAll prints the result of every course it got to, even when some failed.
func (cli *commandLine) sweepAll() error {
	results, err := cli.courses.SweepAll(context.Background())
	for _, res := range results {
		cli.printSweep(res)
	}
	return err
}

func (cli *commandLine) schedule(courseID int) error {
	id, err := cli.courses.ScheduleSweep(context.Background(), courseID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "course %d: sweep scheduled (%s)\n", courseID, id)
	return nil
}
