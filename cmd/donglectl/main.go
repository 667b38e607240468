// donglectl is a maintenance tool for BLE connectivity dongles: it probes
// serial ports, inspects and prunes stored bond information and generates
// LE Secure Connections out-of-band data.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/blekit/dongle/bond"
	"github.com/blekit/dongle/keys"
)

func main() {
	app := cli.NewApp()
	app.Name = "donglectl"
	app.Usage = "maintenance tool for BLE connectivity dongles"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "store",
			Value: "bonds.json",
			Usage: "path of the bond file",
		},
		cli.BoolFlag{
			Name:  "keyring",
			Usage: "keep bonds in the OS credential store instead of a file",
		},
		cli.StringFlag{
			Name:  "keyring-dir",
			Value: ".",
			Usage: "fallback directory for the keyring file backend",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "bonds",
			Usage: "inspect and prune stored bond information",
			Subcommands: []cli.Command{
				{
					Name:   "list",
					Usage:  "list bonded peer addresses",
					Action: listBonds,
				},
				{
					Name:      "delete",
					Usage:     "delete the bond for a peer address",
					ArgsUsage: "<address>",
					Action:    deleteBond,
				},
			},
		},
		{
			Name:      "probe",
			Usage:     "verify a dongle serial port is reachable",
			ArgsUsage: "<port>",
			Action:    probe,
		},
		{
			Name:   "oob",
			Usage:  "generate LE Secure Connections out-of-band data",
			Action: generateOob,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore(c *cli.Context) (bond.Store, error) {
	if c.GlobalBool("keyring") {
		return bond.NewKeyringStore("donglectl", c.GlobalString("keyring-dir"))
	}
	return bond.NewFileStore(c.GlobalString("store")), nil
}

func listBonds(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}

	addrs, err := store.Addresses()
	if err != nil {
		return err
	}
	for _, a := range addrs {
		fmt.Println(a)
	}
	return nil
}

func deleteBond(c *cli.Context) error {
	addr := c.Args().First()
	if addr == "" {
		return errors.New("usage: donglectl bonds delete <address>")
	}

	store, err := openStore(c)
	if err != nil {
		return err
	}

	if err := store.Delete(addr); err != nil {
		if bond.IsNotFound(err) {
			return errors.Errorf("no bond stored for %s", addr)
		}
		return err
	}
	fmt.Printf("deleted bond for %s\n", addr)
	return nil
}

func probe(c *cli.Context) error {
	port := c.Args().First()
	if port == "" {
		return errors.New("usage: donglectl probe <port>")
	}

	p, err := serial.Open(serial.OpenOptions{
		PortName:        port,
		BaudRate:        115200,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		return errors.Wrap(err, "probe open")
	}
	if err := p.Close(); err != nil {
		return errors.Wrap(err, "probe close")
	}
	fmt.Printf("%s: ok\n", port)
	return nil
}

func generateOob(c *cli.Context) error {
	pair, err := keys.Generate()
	if err != nil {
		return err
	}

	random, confirm, err := keys.OobData(pair)
	if err != nil {
		return err
	}

	fmt.Printf("public:  %s\n", hex.EncodeToString(pair.PublicBytes()))
	fmt.Printf("random:  %s\n", hex.EncodeToString(random))
	fmt.Printf("confirm: %s\n", hex.EncodeToString(confirm))
	return nil
}
