package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sql.DB
	usrRepo user.Repository
	courses course.ServiceInterface
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) on the database")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-role ROLE] [-staff] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  sweep -course ID | -all - clear the chat & enrollments of expired courses now")
	fmt.Fprintln(cli.out, "  schedule -course ID - schedule the expiry sweep of a course")
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserRole := addUserCmd.String("role", user.RoleCurator, "The user's role.")
	addUserStaff := addUserCmd.Bool("staff", false, "Grant staff permissions.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	sweepCmd := flag.NewFlagSet("sweep", flag.ContinueOnError)
	sweepCourse := sweepCmd.Int("course", 0, "The ID of the course to sweep.")
	sweepAll := sweepCmd.Bool("all", false, "Sweep every expired course.")

	scheduleCmd := flag.NewFlagSet("schedule", flag.ContinueOnError)
	scheduleCourse := scheduleCmd.Int("course", 0, "The ID of the course.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, sweepCmd, scheduleCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserUname, *addUserEmail, pwd, *addUserRole, *addUserStaff)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "sweep":
		if err := sweepCmd.Parse(args[2:]); err != nil {
			return err
		}
		switch {
		case *sweepAll:
			return cli.sweepAll()
		case *sweepCourse > 0:
			return cli.sweep(*sweepCourse)
		}
		sweepCmd.Usage()
		return errHelp

	case "schedule":
		if err := scheduleCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *scheduleCourse <= 0 {
			scheduleCmd.Usage()
			return errHelp
		}
		return cli.schedule(*scheduleCourse)

	default:
		cli.printUsage()
		return errHelp
	}
}
